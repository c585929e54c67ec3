package engine

import (
	"time"

	"github.com/HerbHall/hsnap/pkg/probe"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records engine counters on a private registry. hsnap exits after
// one run, so the registry is exported as a node-exporter textfile rather
// than scraped. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	probes           *prometheus.CounterVec
	extractionErrors *prometheus.CounterVec
	pluginDuration   *prometheus.GaugeVec
	pluginPackages   *prometheus.GaugeVec
	packages         prometheus.Gauge
	duplicates       prometheus.Gauge
	lastRun          prometheus.Gauge
}

// NewMetrics creates and registers the engine metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hsnap_probes_total",
				Help: "Probes executed, by plugin, probe kind and result.",
			},
			[]string{"plugin", "kind", "result"},
		),
		extractionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hsnap_extraction_errors_total",
				Help: "Extraction failures, by plugin and stage (probes, extract, record).",
			},
			[]string{"plugin", "stage"},
		),
		pluginDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hsnap_plugin_duration_seconds",
				Help: "Wall time of the last run of each plugin.",
			},
			[]string{"plugin"},
		),
		pluginPackages: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hsnap_plugin_packages",
				Help: "Valid packages reported by each plugin before de-duplication.",
			},
			[]string{"plugin"},
		),
		packages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hsnap_inventory_packages",
			Help: "Packages in the de-duplicated inventory.",
		}),
		duplicates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hsnap_inventory_duplicates",
			Help: "Package records dropped as duplicates.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hsnap_last_run_timestamp_seconds",
			Help: "Unix time the last extraction finished.",
		}),
	}
	m.registry.MustRegister(
		m.probes, m.extractionErrors, m.pluginDuration, m.pluginPackages,
		m.packages, m.duplicates, m.lastRun,
	)
	return m
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes all metrics in the Prometheus text format. The file
// is written to a temporary name and renamed, so a collector never reads a
// partial file.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeProbe(plugin string, spec probe.Spec, reason probe.Reason) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(plugin, spec.Kind().String(), reason.String()).Inc()
}

func (m *Metrics) observeExtractionError(plugin, stage string) {
	if m == nil {
		return
	}
	m.extractionErrors.WithLabelValues(plugin, stage).Inc()
}

func (m *Metrics) observePlugin(plugin string, d time.Duration, packages int) {
	if m == nil {
		return
	}
	m.pluginDuration.WithLabelValues(plugin).Set(d.Seconds())
	m.pluginPackages.WithLabelValues(plugin).Set(float64(packages))
}

func (m *Metrics) observeRun(inv *Inventory, now time.Time) {
	if m == nil {
		return
	}
	m.packages.Set(float64(len(inv.Packages)))
	m.duplicates.Set(float64(inv.Duplicates))
	m.lastRun.Set(float64(now.Unix()))
}
