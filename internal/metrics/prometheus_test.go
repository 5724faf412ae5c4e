package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "watcher/pkg/logx"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusSink(reg, logx.Nop()), reg
}

func TestPrometheusSink_TriggerCounters(t *testing.T) {
	s, _ := newTestSink(t)

	s.TriggerFired("schedule")
	s.TriggerFired("schedule")
	s.TriggerFired("manual")
	s.TriggerRejected("schedule")

	assert.Equal(t, 2.0, testutil.ToFloat64(s.firedTotal.WithLabelValues("schedule")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.firedTotal.WithLabelValues("manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.rejectedTotal.WithLabelValues("schedule")))
}

func TestPrometheusSink_PulseCompleted(t *testing.T) {
	s, _ := newTestSink(t)

	s.PulseCompleted(10*time.Millisecond, 3)
	s.PulseCompleted(5*time.Millisecond, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(s.pulseFired))
}

func TestPrometheusSink_ExecutionGauges(t *testing.T) {
	s, _ := newTestSink(t)

	s.QueueDepth("pool", 4)
	s.QueueDepth("pool", 2)
	s.InFlight("pool", 1)
	s.TaskSubmitted("pool")
	s.TaskRejected("pool")
	s.TaskFinished("completed", time.Second)
	s.TaskFinished("failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.queueDepth.WithLabelValues("pool")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.inFlight.WithLabelValues("pool")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.submittedTotal.WithLabelValues("pool")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.taskRejectedTotal.WithLabelValues("pool")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.finishedTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.finishedTotal.WithLabelValues("failed")))
}

func TestPrometheusSink_DoubleRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheusSink(reg, logx.Nop())
	require.NotPanics(t, func() {
		s := NewPrometheusSink(reg, logx.Nop())
		s.TriggerFired("schedule")
	})
}

func TestPrometheusSink_Gather(t *testing.T) {
	s, reg := newTestSink(t)
	s.TriggerFired("schedule")
	s.TriggerDrift(-2 * time.Second)

	n, err := testutil.GatherAndCount(reg, "watcher_trigger_fired_total", "watcher_trigger_drift_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// Verify PrometheusSink implements Sink interface.
var _ Sink = (*PrometheusSink)(nil)
