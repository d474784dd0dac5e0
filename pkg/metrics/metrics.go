package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OUTCOME_OK    = "ok"
	OUTCOME_NOOP  = "noop"
	OUTCOME_ERROR = "error"
)

var (
	// Listeners
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "listener",
		Name:      "events_received_total",
		Help:      "Total chain events parsed and published to the bus",
	}, []string{"source", "kind"})

	EventParseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "listener",
		Name:      "parse_errors_total",
		Help:      "Total chain events dropped because they could not be parsed",
	}, []string{"source", "kind"})

	ListenerReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "listener",
		Name:      "reconnects_total",
		Help:      "Total reconnect attempts per hub topic or evm chain/event",
	}, []string{"topic"})

	// Handlers
	HandlerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "handler",
		Name:      "outcomes_total",
		Help:      "Total handler invocations by outcome",
	}, []string{"handler", "outcome"})

	HandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relayer",
		Subsystem: "handler",
		Name:      "duration_seconds",
		Help:      "Handler processing duration, including chain round trips",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"handler"})

	// Hub
	BroadcastRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "hub",
		Name:      "broadcast_retries_total",
		Help:      "Total hub broadcasts retried after an account sequence mismatch",
	}, []string{"msg"})

	BroadcastTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "hub",
		Name:      "broadcasts_total",
		Help:      "Total hub broadcasts by outcome",
	}, []string{"msg", "outcome"})

	BatchPollAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "hub",
		Name:      "batch_poll_attempts_total",
		Help:      "Total BatchedCommands queries while waiting for a signed batch",
	}, []string{"chain"})

	// Evm
	EvmSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "evm",
		Name:      "submissions_total",
		Help:      "Total destination chain transaction submissions by outcome",
	}, []string{"chain", "method", "outcome"})
)
