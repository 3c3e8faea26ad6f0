// Package store defines the datastore abstraction for the valuation engine.
// Business logic depends on the Store interface, never on concrete
// implementations; the engine itself performs no I/O during evaluation.
package store

import (
	"context"
	"errors"

	domain "github.com/dealbrain/valuation/pkg/types"
)

// Sentinel errors shared by all implementations.
var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// Store defines all data access operations for the valuation engine.
// Rulesets are immutable once saved; there are no update methods by design.
type Store interface {
	// Rulesets. SaveRuleset inserts only; saving an existing id returns
	// ErrConflict, preserving published-version immutability.
	SaveRuleset(ctx context.Context, rs *domain.Ruleset) error
	GetRuleset(ctx context.Context, id string) (*domain.Ruleset, error)
	GetRulesetByHash(ctx context.Context, contentHash string) (*domain.Ruleset, error)
	GetActiveRuleset(ctx context.Context) (*domain.Ruleset, error)
	ListRulesets(ctx context.Context) ([]domain.Ruleset, error)
	// ActivateRuleset marks one ruleset active and deactivates all others
	// in a single transaction.
	ActivateRuleset(ctx context.Context, id string) error

	// Baseline audit log, append-only.
	AppendAuditEntry(ctx context.Context, e *domain.AuditEntry) error
	ListAuditEntries(ctx context.Context, limit int) ([]domain.AuditEntry, error)

	// Listing records for evaluation and bulk revaluation.
	GetRecord(ctx context.Context, listingID string) (*domain.Record, error)
	ListRecords(ctx context.Context, limit, offset int) ([]domain.Record, error)
	CountRecords(ctx context.Context) (int, error)
	SaveRecord(ctx context.Context, rec *domain.Record) error
	SaveBreakdown(ctx context.Context, listingID string, b *domain.Breakdown) error

	// Migrations
	Migrate(ctx context.Context) error

	// Health
	Ping(ctx context.Context) error
}
