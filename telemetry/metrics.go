package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// ActivationBuckets for subscription activation (compose + fetch or observe attach)
	ActivationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

	// PollBuckets for observer re-poll cycles
	PollBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}
)

// Publication Metrics
var (
	// ActivationsTotal counts subscription activations by publication and mode (reactive, non-reactive)
	ActivationsTotal CounterVec = noopCounterVec{}

	// ActivationErrorsTotal counts failed activations by publication and error code
	ActivationErrorsTotal CounterVec = noopCounterVec{}

	// ActivationDurationSeconds measures time from activation to ready by mode
	ActivationDurationSeconds HistogramVec = noopHistogramVec{}

	// ActiveSubscriptions tracks live subscriptions by publication
	ActiveSubscriptions GaugeVec = noopGaugeVec{}

	// EventsTotal counts events emitted to subscribers by kind (added, changed, removed)
	EventsTotal CounterVec = noopCounterVec{}
)

// Store Metrics
var (
	// StoreWritesTotal counts document writes by collection and operation (insert, update, replace, remove)
	StoreWritesTotal CounterVec = noopCounterVec{}

	// ObserverPollSeconds measures observer re-poll latency
	ObserverPollSeconds Histogram = NoopStat{}

	// ActiveObservers tracks live change observers
	ActiveObservers Gauge = NoopStat{}
)

// Session Metrics
var (
	// Sessions tracks connected sessions
	Sessions Gauge = NoopStat{}

	// NotifySubscribers tracks hub subscribers (sampled by the collector)
	NotifySubscribers Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	ActivationsTotal = NewCounterVec(
		"activations_total",
		"Subscription activations by publication and mode",
		[]string{"publication", "mode"},
	)
	ActivationErrorsTotal = NewCounterVec(
		"activation_errors_total",
		"Failed subscription activations by publication and error code",
		[]string{"publication", "code"},
	)
	ActivationDurationSeconds = NewHistogramVec(
		"activation_duration_seconds",
		"Time from activation to ready",
		[]string{"mode"},
		ActivationBuckets,
	)
	ActiveSubscriptions = NewGaugeVec(
		"active_subscriptions",
		"Live subscriptions by publication",
		[]string{"publication"},
	)
	EventsTotal = NewCounterVec(
		"events_total",
		"Events emitted to subscribers by kind",
		[]string{"kind"},
	)

	StoreWritesTotal = NewCounterVec(
		"store_writes_total",
		"Document writes by collection and operation",
		[]string{"collection", "op"},
	)
	ObserverPollSeconds = NewHistogramWithBuckets(
		"observer_poll_seconds",
		"Observer re-poll latency",
		PollBuckets,
	)
	ActiveObservers = NewGauge(
		"active_observers",
		"Live change observers",
	)

	Sessions = NewGauge(
		"sessions",
		"Connected sessions",
	)
	NotifySubscribers = NewGauge(
		"notify_subscribers",
		"Change hub subscribers",
	)
}
