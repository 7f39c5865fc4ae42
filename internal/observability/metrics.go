package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sessionmux",
			Subsystem: "session",
			Name:      "active",
			Help:      "Currently registered sessions.",
		},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sessionmux",
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Frames sent or received, by direction and message type.",
		},
		[]string{"direction", "type"},
	)
	multiblockTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sessionmux",
			Subsystem: "multiblock",
			Name:      "transfers_total",
			Help:      "Multi-block transfers, by direction and outcome.",
		},
		[]string{"direction", "outcome"},
	)
	multiblockChunkDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sessionmux",
			Subsystem: "multiblock",
			Name:      "transfer_duration_seconds",
			Help:      "Wall-clock duration of a completed outgoing multi-block transfer.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	replyTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sessionmux",
			Subsystem: "timer",
			Name:      "reply_timeouts_total",
			Help:      "Pending replies that expired without a matching is-reply frame.",
		},
	)
	heartbeatsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sessionmux",
			Subsystem: "timer",
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeat_Start frames emitted by the timer thread.",
		},
	)
)

// RegisterMetrics registers every collector with the default registry,
// exactly once regardless of how many times it's called.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionsActive,
			framesTotal,
			multiblockTransfersTotal,
			multiblockChunkDuration,
			replyTimeoutsTotal,
			heartbeatsSentTotal,
		)
	})
}

// SetSessionsActive records the current registry session count.
func SetSessionsActive(count int) {
	RegisterMetrics()
	sessionsActive.Set(float64(count))
}

// RecordFrame records one frame crossing the wire in direction ("sent" or
// "received") for the given CommonMessageHeader.Type.
func RecordFrame(direction string, msgType uint8) {
	RegisterMetrics()
	framesTotal.WithLabelValues(direction, strconv.Itoa(int(msgType))).Inc()
}

// RecordMultiblockTransfer records one completed or aborted multi-block
// transfer.
func RecordMultiblockTransfer(direction, outcome string) {
	RegisterMetrics()
	multiblockTransfersTotal.WithLabelValues(direction, outcome).Inc()
}

// ObserveMultiblockDuration records how long an outgoing multi-block
// transfer took from enqueue to Data_Multi_Finish.
func ObserveMultiblockDuration(d time.Duration) {
	RegisterMetrics()
	multiblockChunkDuration.Observe(d.Seconds())
}

// RecordReplyTimeout records one pending reply that expired unanswered.
func RecordReplyTimeout() {
	RegisterMetrics()
	replyTimeoutsTotal.Inc()
}

// RecordHeartbeatSent records one Heartbeat_Start emission.
func RecordHeartbeatSent() {
	RegisterMetrics()
	heartbeatsSentTotal.Inc()
}
