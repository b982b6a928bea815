package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActivePages          prometheus.Gauge
	ActiveCaptures       prometheus.Gauge
	SessionEvents        *prometheus.CounterVec
	CaptureEvents        *prometheus.CounterVec
	SilenceSignals       prometheus.Counter
	AudioBytes           prometheus.Counter
	WSMessages           *prometheus.CounterVec
	WSWriteErrors        prometheus.Counter
	RoomStoreErrors      *prometheus.CounterVec
	RoomsCreated         prometheus.Counter
	DeviceAcquireLatency prometheus.Histogram
}

// NewMetrics registers the instruments with the default registry, so each
// namespace can be created only once per process.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActivePages: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_pages",
			Help:      "Number of open discussion-room page connections.",
		}),
		ActiveCaptures: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_captures",
			Help:      "Number of capture sessions currently recording.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Page session events by type.",
		}, []string{"event"}),
		CaptureEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_events_total",
			Help:      "Capture session transitions and failures by event.",
		}, []string{"event"}),
		SilenceSignals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "silence_signals_total",
			Help:      "Advisory end-of-speech signals emitted.",
		}),
		AudioBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "PCM bytes received from capture platforms.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "Outbound websocket frames that failed to send.",
		}),
		RoomStoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_store_errors_total",
			Help:      "Room store failures by operation and code.",
		}, []string{"op", "code"}),
		RoomsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Discussion rooms created.",
		}),
		DeviceAcquireLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_acquire_latency_ms",
			Help:      "Time from connect to recording in milliseconds, including the permission prompt.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),
	}
}

func (m *Metrics) ObserveDeviceAcquire(d time.Duration) {
	m.DeviceAcquireLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveOutboundMessage(msgType string) {
	m.WSMessages.WithLabelValues("outbound", msgType).Inc()
}

func (m *Metrics) ObserveInboundMessage(msgType string) {
	m.WSMessages.WithLabelValues("inbound", msgType).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
