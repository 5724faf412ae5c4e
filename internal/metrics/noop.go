package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (n *NoopSink) TriggerFired(string)                {}
func (n *NoopSink) TriggerRejected(string)             {}
func (n *NoopSink) TriggerDrift(time.Duration)         {}
func (n *NoopSink) PulseCompleted(time.Duration, int)  {}
func (n *NoopSink) TaskSubmitted(string)               {}
func (n *NoopSink) TaskRejected(string)                {}
func (n *NoopSink) TaskFinished(string, time.Duration) {}
func (n *NoopSink) QueueDepth(string, int)             {}
func (n *NoopSink) InFlight(string, int)               {}
