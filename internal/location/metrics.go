package location

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSamplesRecorded = "location_samples_recorded_total"
	MetricSamplesPruned   = "location_samples_pruned_total"
	MetricSamplesCleared  = "location_samples_cleared_total"
	MetricSettingsUpdates = "location_settings_updates_total"
	MetricStaleReads      = "location_stale_reads_total"
	MetricRejectedSamples = "location_samples_rejected_total"
)

// Metrics contains Prometheus metrics for the location service.
// All operations are thread-safe.
type Metrics struct {
	samplesRecorded prometheus.Counter
	samplesPruned   prometheus.Counter
	samplesCleared  prometheus.Counter
	settingsUpdates *prometheus.CounterVec
	staleReads      prometheus.Counter
	rejectedSamples *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		samplesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSamplesRecorded,
			Help: "Total number of location samples accepted",
		}),
		samplesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSamplesPruned,
			Help: "Total number of location samples removed by age-based pruning",
		}),
		samplesCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSamplesCleared,
			Help: "Total number of location samples removed by disable cascade or data clear",
		}),
		settingsUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSettingsUpdates,
				Help: "Total number of successful settings updates by resulting state",
			},
			[]string{"enabled", "mode"},
		),
		staleReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricStaleReads,
			Help: "Total number of current-location reads that returned a stale result",
		}),
		rejectedSamples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRejectedSamples,
				Help: "Total number of rejected sample submissions by reason",
			},
			[]string{"reason"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.samplesRecorded,
		m.samplesPruned,
		m.samplesCleared,
		m.settingsUpdates,
		m.staleReads,
		m.rejectedSamples,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncSamplesRecorded increments the accepted samples counter.
func (m *Metrics) IncSamplesRecorded() {
	if m == nil {
		return
	}
	m.samplesRecorded.Inc()
}

// AddSamplesPruned adds to the pruned samples counter.
func (m *Metrics) AddSamplesPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.samplesPruned.Add(float64(n))
}

// AddSamplesCleared adds to the cleared samples counter.
func (m *Metrics) AddSamplesCleared(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.samplesCleared.Add(float64(n))
}

// IncSettingsUpdates increments the settings update counter for the
// resulting enabled state and mode.
func (m *Metrics) IncSettingsUpdates(enabled bool, mode Mode) {
	if m == nil {
		return
	}
	state := "false"
	if enabled {
		state = "true"
	}
	m.settingsUpdates.WithLabelValues(state, string(mode)).Inc()
}

// IncStaleReads increments the stale read counter.
func (m *Metrics) IncStaleReads() {
	if m == nil {
		return
	}
	m.staleReads.Inc()
}

// IncRejectedSamples increments the rejected samples counter for a reason.
func (m *Metrics) IncRejectedSamples(reason string) {
	if m == nil {
		return
	}
	m.rejectedSamples.WithLabelValues(reason).Inc()
}
