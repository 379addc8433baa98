// ABOUTME: Prometheus metrics for the playout controller
// ABOUTME: All methods are no-ops on a nil *Metrics
package playout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of one controller
type Metrics struct {
	Ticks           prometheus.Counter
	Underflows      prometheus.Counter
	Chunks          prometheus.Counter
	ChunkErrors     prometheus.Counter
	DroppedSamples  prometheus.Counter
	BufferedSeconds prometheus.Gauge
}

// NewMetrics creates and registers the playout metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsaudio_playout_ticks_total",
			Help: "Total number of device pulls served",
		}),
		Underflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsaudio_playout_underflows_total",
			Help: "Total number of device pulls answered with silence",
		}),
		Chunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsaudio_playout_chunks_total",
			Help: "Total number of chunks written to the playout buffer",
		}),
		ChunkErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsaudio_playout_chunk_errors_total",
			Help: "Total number of chunks dropped because they failed to decode",
		}),
		DroppedSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsaudio_playout_dropped_samples_total",
			Help: "Total samples per channel dropped to honour the latency cap",
		}),
		BufferedSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wsaudio_playout_buffered_seconds",
			Help: "Audio currently queued for playback",
		}),
	}
}

func (m *Metrics) tick(underflow bool) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	if underflow {
		m.Underflows.Inc()
	}
}

func (m *Metrics) chunk() {
	if m == nil {
		return
	}
	m.Chunks.Inc()
}

func (m *Metrics) chunkError() {
	if m == nil {
		return
	}
	m.ChunkErrors.Inc()
}

func (m *Metrics) dropped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.DroppedSamples.Add(float64(n))
}

func (m *Metrics) buffered(seconds float64) {
	if m == nil {
		return
	}
	m.BufferedSeconds.Set(seconds)
}
