package driver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics accumulates batch counters across runs and writes them in the
// node-exporter textfile format.
type Metrics struct {
	registry *prometheus.Registry

	filesScanned prometheus.Counter
	filesCited   prometheus.Counter
	filesFailed  prometheus.Counter
	keys         prometheus.Counter
	keysMissing  prometheus.Counter
	runDuration  prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		filesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cargo_cite",
			Name:      "files_scanned_total",
			Help:      "Source files scanned for citation keys.",
		}),
		filesCited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cargo_cite",
			Name:      "files_cited_total",
			Help:      "Source files whose footnotes changed.",
		}),
		filesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cargo_cite",
			Name:      "files_failed_total",
			Help:      "Source files that could not be processed.",
		}),
		keys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cargo_cite",
			Name:      "keys_total",
			Help:      "Distinct citation keys rendered per run.",
		}),
		keysMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cargo_cite",
			Name:      "keys_missing_total",
			Help:      "Citation keys not found in the bibliography.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cargo_cite",
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run.",
		}),
	}
	m.registry.MustRegister(m.filesScanned, m.filesCited, m.filesFailed, m.keys, m.keysMissing, m.runDuration)
	return m
}

func (m *Metrics) observe(s *Summary) {
	m.filesScanned.Add(float64(s.Scanned))
	m.filesCited.Add(float64(len(s.Changed)))
	m.filesFailed.Add(float64(s.Failed))
	m.keys.Add(float64(s.Keys))
	m.keysMissing.Add(float64(len(s.Missing)))
	m.runDuration.Set(s.Duration.Seconds())
}

// WriteTextfile atomically writes the current values to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
