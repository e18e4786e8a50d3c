package metrics

import (
	"context"
	"net/http"

	"github.com/you-humble/pdftrack/internal/domain"
	"github.com/you-humble/pdftrack/internal/widget"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdftrack"

// Metrics holds the collectors of one pdftrack process.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	alerts      *prometheus.CounterVec
	progress    prometheus.Gauge
	mirrored    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Requests sent to the conversion server",
		}, []string{"code", "method"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Latency of requests to the conversion server",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "widget",
			Name:      "transitions_total",
			Help:      "Widget state changes by target state",
		}, []string{"to"}),

		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "widget",
			Name:      "alerts_total",
			Help:      "Alerts shown by level",
		}, []string{"level"}),

		progress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "widget",
			Name:      "progress_percent",
			Help:      "Progress of the job being polled",
		}),

		mirrored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "artifacts",
			Name:      "mirrored_total",
			Help:      "Artifacts copied to the bucket mirror by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	return promhttp.InstrumentRoundTripperCounter(m.requests,
		promhttp.InstrumentRoundTripperDuration(m.duration, next),
	)
}

// ObserveMirror matches replicator.ResultFunc.
func (m *Metrics) ObserveMirror(a domain.Artifact, attempts int, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.mirrored.WithLabelValues(result).Inc()
}

// View returns a widget.View that counts state changes and alerts.
func (m *Metrics) View() *view {
	return &view{m: m}
}

type view struct {
	m       *Metrics
	last    widget.State
	counted bool
}

// Render is called with the widget lock held, so last needs no lock of its own.
func (v *view) Render(ctx context.Context, model widget.Model) error {
	if !v.counted || model.State != v.last {
		v.m.transitions.WithLabelValues(model.State.String()).Inc()
		v.last = model.State
		v.counted = true
	}
	if model.Screen.ProgressVisible || model.State == widget.StateCompleted {
		v.m.progress.Set(float64(model.Screen.Progress))
	} else {
		v.m.progress.Set(0)
	}
	return nil
}

func (v *view) Alert(ctx context.Context, a domain.Alert) error {
	v.m.alerts.WithLabelValues(string(a.Level)).Inc()
	return nil
}
