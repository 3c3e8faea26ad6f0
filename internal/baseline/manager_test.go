package baseline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealbrain/valuation/internal/store"
	"github.com/dealbrain/valuation/pkg/rules"
	domain "github.com/dealbrain/valuation/pkg/types"
)

func v1Doc(t *testing.T) []byte {
	t.Helper()
	return docJSON(t, "system baseline", map[string]string{
		"CPU.tdp_w":  tdpSpec,
		"RAM.ram_gb": ramSpec,
	})
}

func v2Doc(t *testing.T) []byte {
	t.Helper()
	return docJSON(t, "system baseline", map[string]string{
		"CPU.tdp_w":    tdpSpecRevised,
		"RAM.ram_gb":   ramSpec,
		"GPU.gpu_mark": gpuSpec,
	})
}

func TestManager_Instantiate(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	rs, created, err := m.Instantiate(ctx, v1Doc(t), "ops")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, rs.SystemBaseline)
	assert.Equal(t, 1, rs.Version)
	assert.NotEmpty(t, rs.ContentHash)

	t.Run("materializes baseline and adjustments groups", func(t *testing.T) {
		require.Len(t, rs.Groups, 2)
		baselineGroup := rs.Groups[0]
		assert.Equal(t, domain.CategoryBaseline, baselineGroup.Category)
		assert.True(t, baselineGroup.ReadOnly)
		require.Len(t, baselineGroup.Rules, 2)
		assert.Equal(t, "baseline:CPU.tdp_w", baselineGroup.Rules[0].ID)
		assert.Equal(t, "TDP deduction", baselineGroup.Rules[0].Name)

		adjustments := rs.Groups[1]
		assert.Equal(t, domain.CategoryBasic, adjustments.Category)
		assert.False(t, adjustments.ReadOnly)
		assert.Empty(t, adjustments.Rules)
	})

	t.Run("first baseline is activated", func(t *testing.T) {
		active, err := s.GetActiveRuleset(ctx)
		require.NoError(t, err)
		assert.Equal(t, rs.ID, active.ID)
	})

	t.Run("materialized ruleset evaluates", func(t *testing.T) {
		rec := &domain.Record{
			ListingID: "l1",
			BasePrice: 500,
			RAMGB:     16,
			CPU:       &domain.CPU{TDPW: 35},
		}
		b := rules.NewEvaluator().Evaluate(rec, rs)
		// -0.1 * 35 + 2.5 * 16 = 36.5
		assert.InDelta(t, 536.5, b.AdjustedPrice, 0.001)
	})

	t.Run("reinstantiating the same document is a no-op", func(t *testing.T) {
		again, created, err := m.Instantiate(ctx, v1Doc(t), "ops")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, rs.ID, again.ID)

		all, err := s.ListRulesets(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("audit entry written once", func(t *testing.T) {
		entries, err := m.AuditTrail(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "instantiate", entries[0].Operation)
		assert.Equal(t, "ops", entries[0].Actor)
	})
}

func TestManager_Instantiate_NewDocumentBecomesActive(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	first, _, err := m.Instantiate(ctx, v1Doc(t), "ops")
	require.NoError(t, err)

	second, created, err := m.Instantiate(ctx, v2Doc(t), "ops")
	require.NoError(t, err)
	assert.True(t, created)

	active, err := s.GetActiveRuleset(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	old, err := s.GetRuleset(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.Active, "prior baseline deactivated")
}

func TestManager_DiffAgainstActive(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	t.Run("no active baseline", func(t *testing.T) {
		_, err := m.DiffAgainstActive(ctx, v2Doc(t))
		var se *StateError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "diff", se.Op)
	})

	_, _, err := m.Instantiate(ctx, v1Doc(t), "ops")
	require.NoError(t, err)

	t.Run("field-granular diff", func(t *testing.T) {
		d, err := m.DiffAgainstActive(ctx, v2Doc(t))
		require.NoError(t, err)
		require.Len(t, d.Entries, 2)
		assert.Equal(t, domain.DiffChanged, d.Entry("CPU.tdp_w").Kind)
		assert.Equal(t, domain.DiffAdded, d.Entry("GPU.gpu_mark").Kind)
		assert.Nil(t, d.Entry("RAM.ram_gb"))
	})

	t.Run("diff is read-only", func(t *testing.T) {
		all, err := s.ListRulesets(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestManager_Adopt_SelectedFieldsOnly(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	prior, _, err := m.Instantiate(ctx, v1Doc(t), "ops")
	require.NoError(t, err)

	rs, diff, err := m.Adopt(ctx, v2Doc(t), []string{"CPU.tdp_w"}, "ops")
	require.NoError(t, err)
	require.Len(t, diff.Entries, 2)

	assert.Equal(t, prior.Version+1, rs.Version)
	assert.NotEqual(t, prior.ID, rs.ID)

	// Only the selected field changed: tdp rate updated, GPU rule not added.
	baselineGroup := rs.Groups[0]
	require.Len(t, baselineGroup.Rules, 2)
	var tdpRule *domain.Rule
	for i := range baselineGroup.Rules {
		if baselineGroup.Rules[i].ID == "baseline:CPU.tdp_w" {
			tdpRule = &baselineGroup.Rules[i]
		}
	}
	require.NotNil(t, tdpRule)
	assert.InDelta(t, -0.15, tdpRule.Actions[0].Rate, 0.001)

	t.Run("new version is active, prior untouched", func(t *testing.T) {
		active, err := s.GetActiveRuleset(ctx)
		require.NoError(t, err)
		assert.Equal(t, rs.ID, active.ID)

		old, err := s.GetRuleset(ctx, prior.ID)
		require.NoError(t, err)
		assert.False(t, old.Active)
		assert.Equal(t, prior.ContentHash, old.ContentHash)
	})

	t.Run("audit records adopted and skipped", func(t *testing.T) {
		entries, err := m.AuditTrail(ctx, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "adopt", entries[0].Operation)
		assert.Equal(t, prior.ID, entries[0].PriorRulesetID)
		assert.Equal(t, []string{"CPU.tdp_w"}, entries[0].AdoptedFields)
		assert.Equal(t, []string{"GPU.gpu_mark"}, entries[0].SkippedFields)
	})
}

func TestManager_Adopt_All(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	_, _, err := m.Instantiate(ctx, v1Doc(t), "ops")
	require.NoError(t, err)

	rs, _, err := m.Adopt(ctx, v2Doc(t), nil, "ops")
	require.NoError(t, err)

	require.Len(t, rs.Groups[0].Rules, 3, "all candidate fields adopted")
}

func TestManager_Adopt_InvalidStates(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	t.Run("no active baseline", func(t *testing.T) {
		_, _, err := m.Adopt(ctx, v2Doc(t), nil, "ops")
		var se *StateError
		require.ErrorAs(t, err, &se)
	})

	_, _, err := m.Instantiate(ctx, v1Doc(t), "ops")
	require.NoError(t, err)

	t.Run("identical candidate", func(t *testing.T) {
		_, _, err := m.Adopt(ctx, v1Doc(t), nil, "ops")
		var se *StateError
		require.ErrorAs(t, err, &se)
	})

	t.Run("selection matches nothing", func(t *testing.T) {
		_, _, err := m.Adopt(ctx, v2Doc(t), []string{"Disk.total_gb"}, "ops")
		var se *StateError
		require.ErrorAs(t, err, &se)
	})
}

func TestManager_Activate(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	prior, _, err := m.Instantiate(ctx, v1Doc(t), "ops")
	require.NoError(t, err)
	next, _, err := m.Adopt(ctx, v2Doc(t), nil, "ops")
	require.NoError(t, err)

	// Roll back to the prior version.
	require.NoError(t, m.Activate(ctx, prior.ID, "ops"))

	active, err := s.GetActiveRuleset(ctx)
	require.NoError(t, err)
	assert.Equal(t, prior.ID, active.ID)
	assert.NotEqual(t, next.ID, active.ID)

	assert.Error(t, m.Activate(ctx, "nonexistent", "ops"))
}
