package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealbrain/valuation/internal/store"
	"github.com/dealbrain/valuation/pkg/rules"
	domain "github.com/dealbrain/valuation/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeRuleset() *domain.Ruleset {
	return &domain.Ruleset{
		ID:      "rs1",
		Name:    "desktops",
		Version: 1,
		Groups: []domain.RuleGroup{
			{
				ID: "g1", Name: "Baseline", Category: domain.CategoryBaseline,
				Rules: []domain.Rule{
					{
						ID: "r1", Name: "ram", EvaluationOrder: 1, Active: true,
						Actions: []domain.Action{
							{Type: domain.ActionPerUnit, UnitField: "ram_gb", Rate: -2},
						},
					},
				},
			},
		},
	}
}

func seedStore(t *testing.T, n int) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()

	rs := activeRuleset()
	require.NoError(t, s.SaveRuleset(ctx, rs))
	require.NoError(t, s.ActivateRuleset(ctx, rs.ID))

	for i := range n {
		require.NoError(t, s.SaveRecord(ctx, &domain.Record{
			ListingID: fmt.Sprintf("l%03d", i),
			BasePrice: 500,
			RAMGB:     16,
		}))
	}
	return s
}

func TestRunRevaluation_PersistsAllBreakdowns(t *testing.T) {
	t.Parallel()

	s := seedStore(t, 12)
	eng := NewEngine(s, rules.NewEvaluator(),
		WithLogger(quietLogger()),
		WithPageSize(5),
	)

	res, err := eng.RunRevaluation(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "rs1", res.RulesetID)
	assert.Equal(t, 12, res.Evaluated)
	assert.Equal(t, 12, res.Persisted)
	assert.Equal(t, 0, res.Failed)

	b, ok := s.GetBreakdown("l007")
	require.True(t, ok)
	assert.InDelta(t, 468.0, b.AdjustedPrice, 0.001) // 500 - 2*16
}

func TestRunRevaluation_NoActiveRuleset(t *testing.T) {
	t.Parallel()

	eng := NewEngine(store.NewMemoryStore(), rules.NewEvaluator(),
		WithLogger(quietLogger()))

	_, err := eng.RunRevaluation(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// flakyStore fails SaveBreakdown for one listing id.
type flakyStore struct {
	*store.MemoryStore
	failID string
}

func (f *flakyStore) SaveBreakdown(
	ctx context.Context,
	listingID string,
	b *domain.Breakdown,
) error {
	if listingID == f.failID {
		return errors.New("write failed")
	}
	return f.MemoryStore.SaveBreakdown(ctx, listingID, b)
}

func TestRunRevaluation_PersistFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	s := seedStore(t, 5)
	eng := NewEngine(&flakyStore{MemoryStore: s, failID: "l002"}, rules.NewEvaluator(),
		WithLogger(quietLogger()))

	res, err := eng.RunRevaluation(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, res.Evaluated)
	assert.Equal(t, 4, res.Persisted)
	assert.Equal(t, 1, res.Failed)

	_, ok := s.GetBreakdown("l002")
	assert.False(t, ok)
	_, ok = s.GetBreakdown("l003")
	assert.True(t, ok)
}

func TestRunRevaluation_Cancellation(t *testing.T) {
	t.Parallel()

	s := seedStore(t, 20)
	eng := NewEngine(s, rules.NewEvaluator(),
		WithLogger(quietLogger()),
		WithPageSize(5),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.RunRevaluation(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRevaluation_WriteRateLimits(t *testing.T) {
	t.Parallel()

	s := seedStore(t, 6)
	eng := NewEngine(s, rules.NewEvaluator(),
		WithLogger(quietLogger()),
		WithWriteRate(1000),
	)

	start := time.Now()
	res, err := eng.RunRevaluation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Persisted)
	assert.Less(t, time.Since(start), 5*time.Second)
}
