package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/dealbrain/valuation/pkg/types"
)

const defaultPoolSize = 10

// PostgresStore implements Store using pgxpool (connection-pooled PostgreSQL).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore with connection pooling.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	cfg.MaxConns = defaultPoolSize

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close gracefully shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies pending SQL schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return RunMigrations(ctx, s.pool)
}

// SaveRuleset inserts an immutable ruleset version. Duplicate ids return
// ErrConflict.
func (s *PostgresStore) SaveRuleset(ctx context.Context, rs *domain.Ruleset) error {
	groupsJSON, err := json.Marshal(rs.Groups)
	if err != nil {
		return fmt.Errorf("marshaling rule groups: %w", err)
	}

	args := pgx.NamedArgs{
		"id":              rs.ID,
		"name":            rs.Name,
		"version":         rs.Version,
		"active":          rs.Active,
		"system_baseline": rs.SystemBaseline,
		"content_hash":    rs.ContentHash,
		"groups":          groupsJSON,
		"source_document": nullableJSON(rs.SourceDocument),
		"created_at":      rs.CreatedAt,
	}

	if _, err := s.pool.Exec(ctx, queryInsertRuleset, args); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrConflict
		}
		return fmt.Errorf("inserting ruleset: %w", err)
	}
	return nil
}

// GetRuleset retrieves a ruleset by id.
func (s *PostgresStore) GetRuleset(ctx context.Context, id string) (*domain.Ruleset, error) {
	return s.scanRuleset(s.pool.QueryRow(ctx, queryGetRulesetByID, id))
}

// GetRulesetByHash retrieves the most recent ruleset with the given content
// hash, used for idempotent baseline instantiation.
func (s *PostgresStore) GetRulesetByHash(
	ctx context.Context,
	contentHash string,
) (*domain.Ruleset, error) {
	return s.scanRuleset(s.pool.QueryRow(ctx, queryGetRulesetByHash, contentHash))
}

// GetActiveRuleset retrieves the single active ruleset.
func (s *PostgresStore) GetActiveRuleset(ctx context.Context) (*domain.Ruleset, error) {
	return s.scanRuleset(s.pool.QueryRow(ctx, queryGetActiveRuleset))
}

// ListRulesets returns all ruleset versions, newest first.
func (s *PostgresStore) ListRulesets(ctx context.Context) ([]domain.Ruleset, error) {
	rows, err := s.pool.Query(ctx, queryListRulesets)
	if err != nil {
		return nil, fmt.Errorf("querying rulesets: %w", err)
	}
	defer rows.Close()

	var out []domain.Ruleset
	for rows.Next() {
		rs, err := scanRulesetRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ruleset: %w", err)
		}
		out = append(out, *rs)
	}
	return out, rows.Err()
}

// ActivateRuleset atomically makes id the only active ruleset.
func (s *PostgresStore) ActivateRuleset(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, queryDeactivateRulesets); err != nil {
		return fmt.Errorf("deactivating rulesets: %w", err)
	}

	tag, err := tx.Exec(ctx, queryActivateRuleset, id)
	if err != nil {
		return fmt.Errorf("activating ruleset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

// AppendAuditEntry writes an immutable audit log line.
func (s *PostgresStore) AppendAuditEntry(ctx context.Context, e *domain.AuditEntry) error {
	adopted, err := json.Marshal(e.AdoptedFields)
	if err != nil {
		return fmt.Errorf("marshaling adopted fields: %w", err)
	}
	skipped, err := json.Marshal(e.SkippedFields)
	if err != nil {
		return fmt.Errorf("marshaling skipped fields: %w", err)
	}

	args := pgx.NamedArgs{
		"id":               e.ID,
		"actor":            e.Actor,
		"operation":        e.Operation,
		"ruleset_id":       e.RulesetID,
		"prior_ruleset_id": e.PriorRulesetID,
		"adopted_fields":   adopted,
		"skipped_fields":   skipped,
		"at":               e.At,
	}

	if _, err := s.pool.Exec(ctx, queryInsertAuditEntry, args); err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns the newest audit entries.
func (s *PostgresStore) ListAuditEntries(
	ctx context.Context,
	limit int,
) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, queryListAuditEntries, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e                domain.AuditEntry
			adopted, skipped []byte
		)
		if err := rows.Scan(
			&e.ID, &e.Actor, &e.Operation, &e.RulesetID, &e.PriorRulesetID,
			&adopted, &skipped, &e.At,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if err := json.Unmarshal(adopted, &e.AdoptedFields); err != nil {
			return nil, fmt.Errorf("decoding adopted fields: %w", err)
		}
		if err := json.Unmarshal(skipped, &e.SkippedFields); err != nil {
			return nil, fmt.Errorf("decoding skipped fields: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveRecord upserts a listing record.
func (s *PostgresStore) SaveRecord(ctx context.Context, rec *domain.Record) error {
	cpu, err := json.Marshal(rec.CPU)
	if err != nil {
		return fmt.Errorf("marshaling cpu: %w", err)
	}
	gpu, err := json.Marshal(rec.GPU)
	if err != nil {
		return fmt.Errorf("marshaling gpu: %w", err)
	}
	ram, err := json.Marshal(rec.RAM)
	if err != nil {
		return fmt.Errorf("marshaling ram: %w", err)
	}
	storage, err := json.Marshal(rec.Storage)
	if err != nil {
		return fmt.Errorf("marshaling storage: %w", err)
	}
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("marshaling attributes: %w", err)
	}

	args := pgx.NamedArgs{
		"id":                 rec.ListingID,
		"title":              rec.Title,
		"base_price":         rec.BasePrice,
		"currency":           rec.Currency,
		"condition":          rec.Condition,
		"quantity":           rec.Quantity,
		"ram_gb":             rec.RAMGB,
		"primary_storage_gb": rec.PrimaryStorageGB,
		"cpu":                cpu,
		"gpu":                gpu,
		"ram":                ram,
		"storage":            storage,
		"attributes":         attrs,
	}

	if _, err := s.pool.Exec(ctx, queryUpsertRecord, args); err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}
	return nil
}

// GetRecord retrieves a single listing record by id.
func (s *PostgresStore) GetRecord(
	ctx context.Context,
	listingID string,
) (*domain.Record, error) {
	rec, err := scanRecordRow(s.pool.QueryRow(ctx, queryGetRecord, listingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying record: %w", err)
	}
	return rec, nil
}

// ListRecords pages through listing records for bulk revaluation.
func (s *PostgresStore) ListRecords(
	ctx context.Context,
	limit, offset int,
) ([]domain.Record, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.pool.Query(ctx, queryListRecords, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecordRow(row pgx.Row) (*domain.Record, error) {
	var (
		rec                    domain.Record
		cpu, gpu, ram, storage []byte
		attrs                  []byte
	)
	if err := row.Scan(
		&rec.ListingID, &rec.Title, &rec.BasePrice, &rec.Currency,
		&rec.Condition, &rec.Quantity, &rec.RAMGB, &rec.PrimaryStorageGB,
		&cpu, &gpu, &ram, &storage, &attrs,
	); err != nil {
		return nil, err
	}
	if err := decodeEntity(cpu, &rec.CPU); err != nil {
		return nil, err
	}
	if err := decodeEntity(gpu, &rec.GPU); err != nil {
		return nil, err
	}
	if err := decodeEntity(ram, &rec.RAM); err != nil {
		return nil, err
	}
	if err := decodeEntity(storage, &rec.Storage); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attrs, &rec.Attributes); err != nil {
		return nil, fmt.Errorf("decoding attributes: %w", err)
	}
	return &rec, nil
}

// CountRecords returns the total number of listing records.
func (s *PostgresStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, queryCountRecords).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// SaveBreakdown persists the valuation result for a listing.
func (s *PostgresStore) SaveBreakdown(
	ctx context.Context,
	listingID string,
	b *domain.Breakdown,
) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshaling breakdown: %w", err)
	}

	tag, err := s.pool.Exec(ctx, querySaveBreakdown, listingID, b.AdjustedPrice, data)
	if err != nil {
		return fmt.Errorf("saving breakdown: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) scanRuleset(row pgx.Row) (*domain.Ruleset, error) {
	rs, err := scanRulesetRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rs, nil
}

func scanRulesetRow(row pgx.Row) (*domain.Ruleset, error) {
	var (
		rs          domain.Ruleset
		groups, doc []byte
	)
	if err := row.Scan(
		&rs.ID, &rs.Name, &rs.Version, &rs.Active, &rs.SystemBaseline,
		&rs.ContentHash, &groups, &doc, &rs.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(groups, &rs.Groups); err != nil {
		return nil, fmt.Errorf("decoding rule groups: %w", err)
	}
	if string(doc) != "null" {
		rs.SourceDocument = doc
	}
	return &rs, nil
}

func decodeEntity[T any](data []byte, target **T) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding entity: %w", err)
	}
	*target = &v
	return nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
