package store

import (
	"context"
	"sort"
	"sync"

	domain "github.com/dealbrain/valuation/pkg/types"
)

// MemoryStore is an in-memory Store used by tests and the CLI's dry-run
// paths. Values are copied on the way in and out so callers cannot mutate
// stored state.
type MemoryStore struct {
	mu         sync.RWMutex
	rulesets   map[string]domain.Ruleset
	records    map[string]domain.Record
	breakdowns map[string]domain.Breakdown
	audit      []domain.AuditEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rulesets:   make(map[string]domain.Ruleset),
		records:    make(map[string]domain.Record),
		breakdowns: make(map[string]domain.Breakdown),
	}
}

func (s *MemoryStore) SaveRuleset(_ context.Context, rs *domain.Ruleset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rulesets[rs.ID]; exists {
		return ErrConflict
	}
	s.rulesets[rs.ID] = *rs
	return nil
}

func (s *MemoryStore) GetRuleset(_ context.Context, id string) (*domain.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.rulesets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rs, nil
}

func (s *MemoryStore) GetRulesetByHash(
	_ context.Context,
	contentHash string,
) (*domain.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Ruleset
	for _, rs := range s.rulesets {
		if rs.ContentHash != contentHash {
			continue
		}
		if found == nil || rs.CreatedAt.After(found.CreatedAt) {
			cp := rs
			found = &cp
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) GetActiveRuleset(_ context.Context) (*domain.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rs := range s.rulesets {
		if rs.Active {
			cp := rs
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListRulesets(_ context.Context) ([]domain.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Ruleset, 0, len(s.rulesets))
	for _, rs := range s.rulesets {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ActivateRuleset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.rulesets[id]
	if !ok {
		return ErrNotFound
	}
	for k, rs := range s.rulesets {
		if rs.Active {
			rs.Active = false
			s.rulesets[k] = rs
		}
	}
	target.Active = true
	s.rulesets[id] = target
	return nil
}

func (s *MemoryStore) AppendAuditEntry(_ context.Context, e *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, *e)
	return nil
}

func (s *MemoryStore) ListAuditEntries(
	_ context.Context,
	limit int,
) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.audit) {
		limit = len(s.audit)
	}

	// Newest first.
	out := make([]domain.AuditEntry, 0, limit)
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.audit[i])
	}
	return out, nil
}

func (s *MemoryStore) SaveRecord(_ context.Context, rec *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ListingID] = *rec
	return nil
}

func (s *MemoryStore) GetRecord(
	_ context.Context,
	listingID string,
) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[listingID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) ListRecords(
	_ context.Context,
	limit, offset int,
) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	out := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[id])
	}
	return out, nil
}

func (s *MemoryStore) CountRecords(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) SaveBreakdown(
	_ context.Context,
	listingID string,
	b *domain.Breakdown,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[listingID]; !ok {
		return ErrNotFound
	}
	s.breakdowns[listingID] = *b
	return nil
}

// GetBreakdown returns the last saved breakdown for a listing. Not part of
// the Store interface; tests use it to assert persisted results.
func (s *MemoryStore) GetBreakdown(listingID string) (*domain.Breakdown, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.breakdowns[listingID]
	if !ok {
		return nil, false
	}
	return &b, true
}

func (s *MemoryStore) Migrate(_ context.Context) error { return nil }

func (s *MemoryStore) Ping(_ context.Context) error { return nil }
