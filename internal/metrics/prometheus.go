package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "watcher/pkg/logx"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	log logx.Logger

	// Trigger metrics
	firedTotal    *prometheus.CounterVec
	rejectedTotal *prometheus.CounterVec
	drift         prometheus.Histogram
	pulseDuration prometheus.Histogram
	pulseFired    prometheus.Counter

	// Execution metrics
	submittedTotal    *prometheus.CounterVec
	taskRejectedTotal *prometheus.CounterVec
	finishedTotal     *prometheus.CounterVec
	taskDuration      prometheus.Histogram
	queueDepth        *prometheus.GaugeVec
	inFlight          *prometheus.GaugeVec
}

func NewPrometheusSink(reg prometheus.Registerer, log logx.Logger) *PrometheusSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &PrometheusSink{log: log}
	s.initTriggerMetrics(reg)
	s.initExecutionMetrics(reg)
	return s
}

func (s *PrometheusSink) initTriggerMetrics(reg prometheus.Registerer) {
	s.firedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watcher_trigger_fired_total",
		Help: "Total number of trigger firings delivered to the listener.",
	}, []string{"type"})
	s.rejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watcher_trigger_rejected_total",
		Help: "Total number of firings the listener refused.",
	}, []string{"type"})
	s.drift = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "watcher_trigger_drift_seconds",
		Help:    "Difference between scheduled and actual firing time in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
	s.pulseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "watcher_schedule_pulse_duration_seconds",
		Help:    "Duration of each schedule evaluation pulse in seconds.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
	s.pulseFired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watcher_schedule_pulse_fired_total",
		Help: "Total number of schedule triggers found due across pulses.",
	})

	s.register(reg, s.firedTotal, "watcher_trigger_fired_total")
	s.register(reg, s.rejectedTotal, "watcher_trigger_rejected_total")
	s.register(reg, s.drift, "watcher_trigger_drift_seconds")
	s.register(reg, s.pulseDuration, "watcher_schedule_pulse_duration_seconds")
	s.register(reg, s.pulseFired, "watcher_schedule_pulse_fired_total")
}

func (s *PrometheusSink) initExecutionMetrics(reg prometheus.Registerer) {
	s.submittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watcher_tasks_submitted_total",
		Help: "Total number of tasks accepted by an executor.",
	}, []string{"executor"})
	s.taskRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watcher_tasks_rejected_total",
		Help: "Total number of tasks refused because the executor was saturated or stopped.",
	}, []string{"executor"})
	s.finishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watcher_tasks_finished_total",
		Help: "Total number of tasks that reached a terminal state.",
	}, []string{"state"})
	s.taskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "watcher_task_duration_seconds",
		Help:    "Task run time in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	})
	s.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "watcher_executor_queue_depth",
		Help: "Tasks waiting for a worker.",
	}, []string{"executor"})
	s.inFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "watcher_executor_in_flight",
		Help: "Tasks currently running.",
	}, []string{"executor"})

	s.register(reg, s.submittedTotal, "watcher_tasks_submitted_total")
	s.register(reg, s.taskRejectedTotal, "watcher_tasks_rejected_total")
	s.register(reg, s.finishedTotal, "watcher_tasks_finished_total")
	s.register(reg, s.taskDuration, "watcher_task_duration_seconds")
	s.register(reg, s.queueDepth, "watcher_executor_queue_depth")
	s.register(reg, s.inFlight, "watcher_executor_in_flight")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if reg == nil {
		return
	}
	if err := reg.Register(c); err != nil {
		s.log.Warn("metrics: register failed", logx.String("metric", name), logx.Err(err))
	}
}

func (s *PrometheusSink) TriggerFired(triggerType string) {
	s.firedTotal.WithLabelValues(triggerType).Inc()
}

func (s *PrometheusSink) TriggerRejected(triggerType string) {
	s.rejectedTotal.WithLabelValues(triggerType).Inc()
}

func (s *PrometheusSink) TriggerDrift(drift time.Duration) {
	d := drift.Seconds()
	if d < 0 {
		d = -d
	}
	s.drift.Observe(d)
}

func (s *PrometheusSink) PulseCompleted(duration time.Duration, fired int) {
	s.pulseDuration.Observe(duration.Seconds())
	s.pulseFired.Add(float64(fired))
}

func (s *PrometheusSink) TaskSubmitted(executor string) {
	s.submittedTotal.WithLabelValues(executor).Inc()
}

func (s *PrometheusSink) TaskRejected(executor string) {
	s.taskRejectedTotal.WithLabelValues(executor).Inc()
}

func (s *PrometheusSink) TaskFinished(state string, duration time.Duration) {
	s.finishedTotal.WithLabelValues(state).Inc()
	s.taskDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) QueueDepth(executor string, depth int) {
	s.queueDepth.WithLabelValues(executor).Set(float64(depth))
}

func (s *PrometheusSink) InFlight(executor string, n int) {
	s.inFlight.WithLabelValues(executor).Set(float64(n))
}
