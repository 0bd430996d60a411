package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Streaming agent metrics for production monitoring
var (
	// Transport metrics
	ChannelConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livevlm_agent_channel_connected",
			Help: "Whether the WebSocket channel is connected (1=connected, 0=not)",
		},
	)

	ChannelReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livevlm_agent_channel_reconnects_total",
			Help: "Total number of reconnection attempts",
		},
	)

	ChannelMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livevlm_agent_channel_messages_total",
			Help: "Total number of channel messages",
		},
		[]string{"direction", "type"}, // direction: inbound/outbound
	)

	ChannelMalformedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livevlm_agent_channel_malformed_total",
			Help: "Total number of malformed inbound payloads dropped",
		},
	)

	// Query metrics
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livevlm_agent_queries_total",
			Help: "Total number of VLM queries submitted",
		},
		[]string{"model", "status"}, // status: ok/error
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livevlm_agent_query_duration_seconds",
			Help:    "Round-trip duration from query send to response, in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"model"},
	)

	// Pacer metrics
	FramesCaptured = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livevlm_agent_frames_captured_total",
			Help: "Total number of frames captured and submitted",
		},
	)

	TicksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livevlm_agent_ticks_skipped_total",
			Help: "Total number of pacer ticks skipped because a query was in flight",
		},
	)

	// Session metrics
	FramesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livevlm_agent_frames_recorded_total",
			Help: "Total number of frame records appended to session history",
		},
	)

	FramesEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livevlm_agent_frames_evicted_total",
			Help: "Total number of frame records evicted from bounded history",
		},
	)

	// Archive metrics
	ArchiveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livevlm_agent_archive_writes_total",
			Help: "Total number of frame archive writes",
		},
		[]string{"status"}, // status: ok/error
	)
)
