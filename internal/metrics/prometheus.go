package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for the voice changer session.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Permission metrics
	PermissionRequests *prometheus.CounterVec

	// Recording metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingDuration   prometheus.Histogram
	InputLevel          prometheus.Gauge
	MeterSamples        *prometheus.CounterVec

	// Playback metrics
	Playbacks      *prometheus.CounterVec
	PlaybackActive prometheus.Gauge

	// Failures surfaced as advisories, by kind
	Advisories *prometheus.CounterVec
}

// New registers the metrics with reg. Use prometheus.NewRegistry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		PermissionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicechanger_permission_requests_total",
			Help: "Microphone permission requests by result",
		}, []string{"result"}),

		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "voicechanger_recordings_started_total",
			Help: "Recordings started",
		}),
		RecordingsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "voicechanger_recordings_completed_total",
			Help: "Recordings finalized with a usable reference",
		}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicechanger_recording_duration_seconds",
			Help:    "Elapsed seconds of finished recordings",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		InputLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicechanger_input_level",
			Help: "Current normalized input level (0-100)",
		}),
		MeterSamples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicechanger_meter_samples_total",
			Help: "Input level samples by source (device or placeholder)",
		}, []string{"source"}),

		Playbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicechanger_playbacks_total",
			Help: "Playbacks started by effect",
		}, []string{"effect"}),
		PlaybackActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicechanger_playback_active",
			Help: "1 while a playback is in progress",
		}),

		Advisories: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicechanger_advisories_total",
			Help: "User-facing advisories by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) PermissionResult(granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.PermissionRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

// RecordingStopped records a finished recording and clears the level gauge
func (m *Metrics) RecordingStopped(elapsed time.Duration, completed bool) {
	if m == nil {
		return
	}
	m.InputLevel.Set(0)
	if completed {
		m.RecordingsCompleted.Inc()
		m.RecordingDuration.Observe(elapsed.Seconds())
	}
}

// LevelSampled records one meter sample. placeholder marks substituted values.
func (m *Metrics) LevelSampled(level float64, placeholder bool) {
	if m == nil {
		return
	}
	source := "device"
	if placeholder {
		source = "placeholder"
	}
	m.MeterSamples.WithLabelValues(source).Inc()
	m.InputLevel.Set(level)
}

func (m *Metrics) PlaybackStarted(effectID string) {
	if m == nil {
		return
	}
	m.Playbacks.WithLabelValues(effectID).Inc()
	m.PlaybackActive.Set(1)
}

func (m *Metrics) PlaybackStopped() {
	if m == nil {
		return
	}
	m.PlaybackActive.Set(0)
}

func (m *Metrics) Advisory(kind string) {
	if m == nil {
		return
	}
	m.Advisories.WithLabelValues(kind).Inc()
}
