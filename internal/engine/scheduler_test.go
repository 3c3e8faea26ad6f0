package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealbrain/valuation/internal/store"
	"github.com/dealbrain/valuation/pkg/rules"
)

func newTestScheduler(t *testing.T, interval time.Duration) *Scheduler {
	t.Helper()
	eng := NewEngine(store.NewMemoryStore(), rules.NewEvaluator(),
		WithLogger(quietLogger()))
	sched, err := NewScheduler(eng, interval, quietLogger())
	require.NoError(t, err)
	return sched
}

func TestNewScheduler_RegistersCronEntry(t *testing.T) {
	t.Parallel()

	sched := newTestScheduler(t, 15*time.Minute)
	assert.Len(t, sched.Entries(), 1)
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	sched := newTestScheduler(t, time.Hour)
	sched.Start()
	ctx := sched.Stop()
	<-ctx.Done()
}
