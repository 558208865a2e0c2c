package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat relay.
//
// Naming convention: namespace_subsystem_name
// - namespace: parlor (application-level grouping)
// - subsystem: websocket, room, bus (feature-level grouping)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (frames processed, errors)
// - Histogram: Latency distributions (frame handling time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parlor",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parlor",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of connected participants per room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "parlor",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of connected participants in each room",
	}, []string{"room_id"})

	// FramesProcessed counts inbound frames by type and outcome.
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "websocket",
		Name:      "frames_total",
		Help:      "Total frames processed",
	}, []string{"frame_type", "status"})

	// FrameHandlingDuration tracks time spent handling inbound frames.
	FrameHandlingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parlor",
		Subsystem: "websocket",
		Name:      "frame_handling_seconds",
		Help:      "Time spent handling inbound frames",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"frame_type"})

	// CircuitBreakerState reports breaker state per backend (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "parlor",
		Subsystem: "bus",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"backend"})

	// CircuitBreakerFailures counts requests rejected by an open breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "bus",
		Name:      "circuit_breaker_failures_total",
		Help:      "Requests rejected because the circuit breaker was open",
	}, []string{"backend"})

	// RateLimitExceeded counts requests rejected by the rate limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Requests rejected because a rate limit was reached",
	}, []string{"endpoint", "key_type"})

	// RateLimitRequests counts requests that passed the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlor",
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Requests checked and allowed by the rate limiter",
	}, []string{"endpoint"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
