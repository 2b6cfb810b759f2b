// Package metrics defines the prometheus collectors of the console and the
// simulator. Collectors live in a package registry served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every vconsole collector.
var Registry = prometheus.NewRegistry()

var (
	// CommandSentTotal counts backend requests by endpoint and outcome.
	// status: success/failed
	CommandSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vconsole_command_sent_total",
			Help: "Total number of commands sent to the vehicle backend.",
		},
		[]string{"command", "status"},
	)

	// CommandLatency records the round trip of backend requests.
	CommandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vconsole_command_latency_seconds",
			Help:    "Latency of commands sent to the vehicle backend.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	TelemetryFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vconsole_telemetry_frames_total",
			Help: "Telemetry frames applied, by frame type.",
		},
		[]string{"type"},
	)

	DecodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vconsole_telemetry_decode_errors_total",
			Help: "Telemetry frames dropped because they could not be decoded.",
		},
	)

	// SocketReconnectsTotal counts reconnect attempts per channel.
	// channel: telemetry/video
	SocketReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vconsole_socket_reconnects_total",
			Help: "Socket reconnect attempts.",
		},
		[]string{"channel"},
	)

	// SocketConnected is 1 while the channel is connected.
	SocketConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vconsole_socket_connected",
			Help: "Socket connection status (1=connected, 0=down).",
		},
		[]string{"channel"},
	)

	VideoFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vconsole_video_frames_total",
			Help: "Video frames handed to the decoder.",
		},
	)

	VideoBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vconsole_video_bytes_total",
			Help: "Video bytes handed to the decoder.",
		},
	)

	ControlHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vconsole_control_held",
			Help: "Whether this console holds live control (1=held).",
		},
	)

	ActiveUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vconsole_active_users",
			Help: "Active console sessions reported by the backend.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		CommandSentTotal,
		CommandLatency,
		TelemetryFramesTotal,
		DecodeErrorsTotal,
		SocketReconnectsTotal,
		SocketConnected,
		VideoFramesTotal,
		VideoBytesTotal,
		ControlHeld,
		ActiveUsers,
	)
}

// Handler serves Registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Bool converts a flag to a gauge value.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
