// Package metrics records trigger and execution counters.
package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations must not block or propagate errors.
type Sink interface {
	// Trigger metrics
	TriggerFired(triggerType string)
	TriggerRejected(triggerType string)
	TriggerDrift(drift time.Duration)
	PulseCompleted(duration time.Duration, fired int)

	// Execution metrics
	TaskSubmitted(executor string)
	TaskRejected(executor string)
	TaskFinished(state string, duration time.Duration)
	QueueDepth(executor string, depth int)
	InFlight(executor string, n int)
}

// OrNoop returns s, or a no-op sink when s is nil.
func OrNoop(s Sink) Sink {
	if s == nil {
		return NewNoopSink()
	}
	return s
}
