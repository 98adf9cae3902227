package obsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the Prometheus collectors for one instrumented process.
// Construct one with NewRecorder and pass it by reference to the services
// that record metrics; it carries no package-level state.
type Recorder struct {
	tokenOperations *prometheus.CounterVec
	tokenLatency    *prometheus.HistogramVec
	activeTokens    *prometheus.GaugeVec

	groupOperations *prometheus.CounterVec

	storageOperations *prometheus.CounterVec
	storageLatency    *prometheus.HistogramVec

	circuitState *prometheus.GaugeVec

	agentEvents *prometheus.CounterVec

	auditEntries     *prometheus.CounterVec
	auditChainLength *prometheus.HistogramVec
}

// NewRecorder builds a Recorder and registers its collectors with reg. If
// reg is nil, prometheus.DefaultRegisterer is used.
func NewRecorder(namespace string, reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		tokenOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_operations_total",
				Help:      "Total token operations by kind and outcome.",
			},
			[]string{"operation", "status"},
		),
		tokenLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_operation_duration_seconds",
				Help:      "Token operation latency in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
			},
			[]string{"operation"},
		),
		activeTokens: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_tokens",
				Help:      "Number of currently active token records.",
			},
			[]string{"backend"},
		),
		groupOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "group_operations_total",
				Help:      "Total group registry operations by kind and outcome.",
			},
			[]string{"operation", "status"},
		),
		storageOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total storage backend operations by backend, kind and outcome.",
			},
			[]string{"backend", "operation", "status"},
		),
		storageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_operation_duration_seconds",
				Help:      "Storage backend operation latency in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
			},
			[]string{"backend", "operation"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
			},
			[]string{"breaker"},
		),
		agentEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "identity_agent_events_total",
				Help:      "Total identity agent login/renew/relogin events by outcome.",
			},
			[]string{"event", "status"},
		),
		auditEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_entries_total",
				Help:      "Total audit entries logged by type and result.",
			},
			[]string{"type", "action", "result"},
		),
		auditChainLength: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "audit_chain_length",
				Help:      "Length of audit hash chains at close.",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"chain_type"},
		),
	}

	reg.MustRegister(
		r.tokenOperations,
		r.tokenLatency,
		r.activeTokens,
		r.groupOperations,
		r.storageOperations,
		r.storageLatency,
		r.circuitState,
		r.agentEvents,
		r.auditEntries,
		r.auditChainLength,
	)

	return r
}

// RecordTokenOperation increments the operation/status counter for a
// token-service call (create, verify, revoke, revoke_by_name, list).
func (r *Recorder) RecordTokenOperation(operation, status string) {
	r.tokenOperations.WithLabelValues(operation, status).Inc()
}

// ObserveTokenLatency records how long a token-service call took.
func (r *Recorder) ObserveTokenLatency(operation string, d time.Duration) {
	r.tokenLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// SetActiveTokens records the current count of active token records for
// the given backend.
func (r *Recorder) SetActiveTokens(backend string, count float64) {
	r.activeTokens.WithLabelValues(backend).Set(count)
}

// RecordGroupOperation increments the operation/status counter for a
// group-registry call (create, make_defunct, bootstrap).
func (r *Recorder) RecordGroupOperation(operation, status string) {
	r.groupOperations.WithLabelValues(operation, status).Inc()
}

// RecordStorageOperation increments the backend/operation/status counter
// for a storage call.
func (r *Recorder) RecordStorageOperation(backend, operation, status string) {
	r.storageOperations.WithLabelValues(backend, operation, status).Inc()
}

// ObserveStorageLatency records how long a storage call took.
func (r *Recorder) ObserveStorageLatency(backend, operation string, d time.Duration) {
	r.storageLatency.WithLabelValues(backend, operation).Observe(d.Seconds())
}

// circuitStateValue maps a breaker state name to the gauge's numeric
// encoding (0=closed, 1=half-open, 2=open).
func circuitStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// RecordCircuitState sets the breaker's current state gauge.
func (r *Recorder) RecordCircuitState(breaker, state string) {
	r.circuitState.WithLabelValues(breaker).Set(circuitStateValue(state))
}

// RecordAgentEvent increments the event/status counter for an identity
// agent login, renew or relogin transition.
func (r *Recorder) RecordAgentEvent(event, status string) {
	r.agentEvents.WithLabelValues(event, status).Inc()
}

// RecordAuditEntry increments the type/action/result counter for one
// logged audit entry.
func (r *Recorder) RecordAuditEntry(typ, action, result string) {
	r.auditEntries.WithLabelValues(typ, action, result).Inc()
}

// ObserveAuditChainLength records the length of an audit hash chain,
// typically sampled when a chain is closed or retrieved in full.
func (r *Recorder) ObserveAuditChainLength(chainType string, length int) {
	r.auditChainLength.WithLabelValues(chainType).Observe(float64(length))
}

// Timer measures and records the duration of a single operation.
type Timer struct {
	start     time.Time
	operation string
	observe   func(operation string, d time.Duration)
}

// NewTokenTimer starts a timer that records against the token latency
// histogram when Stop is called.
func (r *Recorder) NewTokenTimer(operation string) *Timer {
	return &Timer{start: time.Now(), operation: operation, observe: r.ObserveTokenLatency}
}

// NewStorageTimer starts a timer that records against the storage latency
// histogram for the given backend when Stop is called.
func (r *Recorder) NewStorageTimer(backend, operation string) *Timer {
	return &Timer{
		start:     time.Now(),
		operation: operation,
		observe: func(op string, d time.Duration) {
			r.storageLatency.WithLabelValues(backend, op).Observe(d.Seconds())
		},
	}
}

// Stop records the elapsed duration since the timer started.
func (t *Timer) Stop() {
	t.observe(t.operation, time.Since(t.start))
}
