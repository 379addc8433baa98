// ABOUTME: Prometheus metrics for the relay
// ABOUTME: Tracks connected clients, broadcast chunks and dropped sends
package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the relay's Prometheus metrics
type Metrics struct {
	Clients      prometheus.Gauge
	Chunks       prometheus.Counter
	Bytes        prometheus.Counter
	DroppedSends prometheus.Counter
	EncodeErrors prometheus.Counter
}

// NewMetrics creates and registers the relay metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Clients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wsaudio_relay_clients",
			Help: "Number of connected websocket clients",
		}),
		Chunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsaudio_relay_chunks_total",
			Help: "Total number of audio chunks encoded and broadcast",
		}),
		Bytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsaudio_relay_chunk_bytes_total",
			Help: "Total encoded audio bytes broadcast",
		}),
		DroppedSends: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsaudio_relay_dropped_sends_total",
			Help: "Messages dropped because a client's send buffer was full",
		}),
		EncodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsaudio_relay_encode_errors_total",
			Help: "Total number of frames that failed to encode",
		}),
	}
}
