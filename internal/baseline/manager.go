package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dealbrain/valuation/internal/metrics"
	"github.com/dealbrain/valuation/internal/store"
	domain "github.com/dealbrain/valuation/pkg/types"
)

// StateError reports a lifecycle operation attempted from an invalid state,
// such as adopting with no active baseline.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("baseline %s: %s", e.Op, e.Reason)
}

// Manager drives the baseline lifecycle against the store. All mutations go
// through new immutable ruleset versions; nothing edits a saved ruleset in
// place.
type Manager struct {
	store store.Store
	log   *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Manager backed by the given store.
func NewManager(s store.Store, opts ...Option) *Manager {
	m := &Manager{store: s, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Instantiate turns a baseline document into a stored ruleset version and
// activates it, deactivating any prior active baseline. Idempotent by
// content hash: re-instantiating an already-known document returns the
// existing ruleset with created=false and writes nothing.
func (m *Manager) Instantiate(
	ctx context.Context,
	docJSON []byte,
	actor string,
) (*domain.Ruleset, bool, error) {
	doc, err := ParseDocument(docJSON)
	if err != nil {
		return nil, false, err
	}

	hash := doc.Hash()
	if existing, err := m.store.GetRulesetByHash(ctx, hash); err == nil {
		m.log.Info("baseline already instantiated",
			"name", doc.Name, "ruleset", existing.ID, "version", existing.Version)
		return existing, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("looking up baseline by hash: %w", err)
	}

	rs, err := m.materialize(ctx, doc, hash)
	if err != nil {
		return nil, false, err
	}

	if err := m.store.SaveRuleset(ctx, rs); err != nil {
		return nil, false, fmt.Errorf("saving instantiated baseline: %w", err)
	}

	if err := m.activate(ctx, rs); err != nil {
		return nil, false, err
	}

	if err := m.audit(ctx, actor, "instantiate", rs.ID, "", nil, nil); err != nil {
		return nil, false, err
	}

	m.log.Info("baseline instantiated",
		"name", doc.Name, "ruleset", rs.ID, "version", rs.Version)
	return rs, true, nil
}

// DiffAgainstActive compares a candidate document against the active
// baseline's source document.
func (m *Manager) DiffAgainstActive(
	ctx context.Context,
	candidateJSON []byte,
) (*domain.BaselineDiff, error) {
	candidate, err := ParseDocument(candidateJSON)
	if err != nil {
		return nil, err
	}

	_, active, err := m.activeDocument(ctx, "diff")
	if err != nil {
		return nil, err
	}

	return Diff(candidate, active), nil
}

// Adopt applies selected field-level changes from a candidate document onto
// the active baseline, producing and activating a new ruleset version.
// selectedPaths nil means adopt every change. Unselected changes are skipped
// and recorded in the audit entry. Adoption never mutates the prior version.
func (m *Manager) Adopt(
	ctx context.Context,
	candidateJSON []byte,
	selectedPaths []string,
	actor string,
) (*domain.Ruleset, *domain.BaselineDiff, error) {
	candidate, err := ParseDocument(candidateJSON)
	if err != nil {
		return nil, nil, err
	}

	prior, activeDoc, err := m.activeDocument(ctx, "adopt")
	if err != nil {
		return nil, nil, err
	}

	diff := Diff(candidate, activeDoc)
	if len(diff.Entries) == 0 {
		return nil, diff, &StateError{Op: "adopt", Reason: "candidate is identical to the active baseline"}
	}

	selected := map[string]bool{}
	for _, p := range selectedPaths {
		selected[p] = true
	}
	selectAll := selectedPaths == nil

	// Copy-on-adopt: apply changes to a clone, never to the active document.
	next := activeDoc.clone()
	var adopted, skipped []string
	for _, entry := range diff.Entries {
		if !selectAll && !selected[entry.Path] {
			skipped = append(skipped, entry.Path)
			continue
		}
		switch entry.Kind {
		case domain.DiffAdded, domain.DiffChanged:
			next.set(entry.Path, entry.After)
		case domain.DiffRemoved:
			next.remove(entry.Path)
		}
		adopted = append(adopted, entry.Path)
	}

	if len(adopted) == 0 {
		return nil, diff, &StateError{Op: "adopt", Reason: "no selected paths match the diff"}
	}

	next.Name = candidate.Name
	rs, err := m.materialize(ctx, next, next.Hash())
	if err != nil {
		return nil, nil, err
	}
	rs.Version = prior.Version + 1

	if err := m.store.SaveRuleset(ctx, rs); err != nil {
		return nil, nil, fmt.Errorf("saving adopted baseline: %w", err)
	}
	if err := m.activate(ctx, rs); err != nil {
		return nil, nil, err
	}
	if err := m.audit(ctx, actor, "adopt", rs.ID, prior.ID, adopted, skipped); err != nil {
		return nil, nil, err
	}

	metrics.BaselineAdoptionsTotal.Inc()
	m.log.Info("baseline adopted",
		"ruleset", rs.ID, "version", rs.Version,
		"adopted", len(adopted), "skipped", len(skipped))
	return rs, diff, nil
}

// Activate makes an existing ruleset version the active one.
func (m *Manager) Activate(ctx context.Context, id string, actor string) error {
	rs, err := m.store.GetRuleset(ctx, id)
	if err != nil {
		return fmt.Errorf("loading ruleset %s: %w", id, err)
	}
	if err := m.activate(ctx, rs); err != nil {
		return err
	}
	return m.audit(ctx, actor, "activate", rs.ID, "", nil, nil)
}

// AuditTrail returns the newest lifecycle audit entries.
func (m *Manager) AuditTrail(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	return m.store.ListAuditEntries(ctx, limit)
}

// materialize builds the ruleset for a document: one read-only Baseline
// group holding a rule per entity field, plus an empty writable Adjustments
// group for local edits. The source document rides along for future diffs.
func (m *Manager) materialize(
	_ context.Context,
	doc *Document,
	hash string,
) (*domain.Ruleset, error) {
	group := domain.RuleGroup{
		ID:       "baseline",
		Name:     "Baseline",
		Category: domain.CategoryBaseline,
		ReadOnly: true,
	}

	for i, path := range doc.paths() {
		var spec RuleSpec
		if err := json.Unmarshal(doc.lookup(path), &spec); err != nil {
			return nil, fmt.Errorf("baseline field %s: %w", path, err)
		}

		name := spec.Description
		if name == "" {
			name = path
		}
		order := spec.EvaluationOrder
		if order == 0 {
			order = i + 1
		}

		rule := domain.Rule{
			ID:              "baseline:" + path,
			Name:            name,
			EvaluationOrder: order,
			Active:          true,
			Actions:         []domain.Action{spec.Action},
		}
		if spec.Condition != nil {
			rule.Condition = *spec.Condition
		}
		group.Rules = append(group.Rules, rule)
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding source document: %w", err)
	}

	return &domain.Ruleset{
		ID:             uuid.NewString(),
		Name:           doc.Name,
		Version:        1,
		SystemBaseline: true,
		ContentHash:    hash,
		Groups: []domain.RuleGroup{
			group,
			{
				ID:         "adjustments",
				Name:       "Adjustments",
				Category:   domain.CategoryBasic,
				GroupOrder: 1,
			},
		},
		SourceDocument: docJSON,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// activeDocument loads the active ruleset and its baseline source document.
func (m *Manager) activeDocument(
	ctx context.Context,
	op string,
) (*domain.Ruleset, *Document, error) {
	active, err := m.store.GetActiveRuleset(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, &StateError{Op: op, Reason: "no active ruleset"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading active ruleset: %w", err)
	}
	if !active.SystemBaseline || len(active.SourceDocument) == 0 {
		return nil, nil, &StateError{Op: op, Reason: "active ruleset is not a system baseline"}
	}

	doc, err := ParseDocument(active.SourceDocument)
	if err != nil {
		return nil, nil, fmt.Errorf("active baseline source document: %w", err)
	}
	return active, doc, nil
}

func (m *Manager) activate(ctx context.Context, rs *domain.Ruleset) error {
	if err := m.store.ActivateRuleset(ctx, rs.ID); err != nil {
		return fmt.Errorf("activating ruleset %s: %w", rs.ID, err)
	}
	metrics.ActiveRulesetVersion.Set(float64(rs.Version))
	return nil
}

func (m *Manager) audit(
	ctx context.Context,
	actor, op, rulesetID, priorID string,
	adopted, skipped []string,
) error {
	entry := &domain.AuditEntry{
		ID:             uuid.NewString(),
		Actor:          actor,
		Operation:      op,
		RulesetID:      rulesetID,
		PriorRulesetID: priorID,
		AdoptedFields:  adopted,
		SkippedFields:  skipped,
		At:             time.Now().UTC(),
	}
	if err := m.store.AppendAuditEntry(ctx, entry); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}
