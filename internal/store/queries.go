package store

// SQL query constants organized by entity.
// All SQL lives here — PostgresStore methods reference these constants.

// Ruleset queries. The group tree and source document are stored as JSONB
// snapshots: rulesets are immutable versions, not row-per-rule entities.
const (
	queryInsertRuleset = `
		INSERT INTO rulesets (
			id, name, version, active, system_baseline, content_hash,
			groups, source_document, created_at
		) VALUES (
			@id, @name, @version, @active, @system_baseline, @content_hash,
			@groups, @source_document, @created_at
		)`

	querySelectRuleset = `
		SELECT id, name, version, active, system_baseline, content_hash,
			groups, COALESCE(source_document, 'null'::jsonb), created_at
		FROM rulesets`

	queryGetRulesetByID     = querySelectRuleset + ` WHERE id = $1`
	queryGetRulesetByHash   = querySelectRuleset + ` WHERE content_hash = $1 ORDER BY created_at DESC LIMIT 1`
	queryGetActiveRuleset   = querySelectRuleset + ` WHERE active`
	queryListRulesets       = querySelectRuleset + ` ORDER BY created_at DESC`
	queryDeactivateRulesets = `UPDATE rulesets SET active = false WHERE active`
	queryActivateRuleset    = `UPDATE rulesets SET active = true WHERE id = $1`
)

// Audit queries.
const (
	queryInsertAuditEntry = `
		INSERT INTO baseline_audit (
			id, actor, operation, ruleset_id, prior_ruleset_id,
			adopted_fields, skipped_fields, at
		) VALUES (
			@id, @actor, @operation, @ruleset_id, @prior_ruleset_id,
			@adopted_fields, @skipped_fields, @at
		)`

	queryListAuditEntries = `
		SELECT id, actor, operation, ruleset_id, COALESCE(prior_ruleset_id, ''),
			adopted_fields, skipped_fields, at
		FROM baseline_audit
		ORDER BY at DESC
		LIMIT $1`
)

// Listing record queries.
const (
	queryUpsertRecord = `
		INSERT INTO listings (
			id, title, base_price, currency, condition, quantity,
			ram_gb, primary_storage_gb, cpu, gpu, ram, storage, attributes,
			updated_at
		) VALUES (
			@id, @title, @base_price, @currency, @condition, @quantity,
			@ram_gb, @primary_storage_gb, @cpu, @gpu, @ram, @storage, @attributes,
			now()
		)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			base_price = EXCLUDED.base_price,
			currency = EXCLUDED.currency,
			condition = EXCLUDED.condition,
			quantity = EXCLUDED.quantity,
			ram_gb = EXCLUDED.ram_gb,
			primary_storage_gb = EXCLUDED.primary_storage_gb,
			cpu = EXCLUDED.cpu,
			gpu = EXCLUDED.gpu,
			ram = EXCLUDED.ram,
			storage = EXCLUDED.storage,
			attributes = EXCLUDED.attributes,
			updated_at = now()`

	querySelectRecord = `
		SELECT id, title, base_price, COALESCE(currency, 'USD'),
			COALESCE(condition, 'unknown'), quantity,
			COALESCE(ram_gb, 0), COALESCE(primary_storage_gb, 0),
			cpu, gpu, ram, storage, COALESCE(attributes, '{}'::jsonb)
		FROM listings`

	queryGetRecord = querySelectRecord + ` WHERE id = $1`

	queryListRecords = querySelectRecord + `
		ORDER BY id
		LIMIT $1 OFFSET $2`

	queryCountRecords = `SELECT count(*) FROM listings`

	querySaveBreakdown = `
		UPDATE listings SET
			adjusted_price = $2,
			breakdown = $3,
			valuated_at = now()
		WHERE id = $1`
)
