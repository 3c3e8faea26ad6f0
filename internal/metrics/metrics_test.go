package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	t.Parallel()

	// Verify all metrics are non-nil (registered via promauto on package init).
	assert.NotNil(t, EvaluationDuration)
	assert.NotNil(t, EvaluationsTotal)
	assert.NotNil(t, RuleMatchesTotal)
	assert.NotNil(t, ActionErrorsTotal)
	assert.NotNil(t, BatchDuration)
	assert.NotNil(t, BatchRecordsTotal)
	assert.NotNil(t, BatchErrorsTotal)
	assert.NotNil(t, BaselineAdoptionsTotal)
	assert.NotNil(t, ActiveRulesetVersion)
}

func TestActiveRulesetVersionGauge(t *testing.T) {
	ActiveRulesetVersion.Set(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(ActiveRulesetVersion))
}

func TestMetricsCarryNamespace(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	for _, name := range []string{
		"valuation_evaluations_total",
		"valuation_batch_duration_seconds",
		"valuation_baseline_adoptions_total",
		"valuation_active_ruleset_version",
	} {
		mf, ok := byName[name]
		require.True(t, ok, "metric %s not registered", name)
		assert.NotEmpty(t, mf.GetHelp())
	}
}
