// Package metrics collects run counters on a private Prometheus registry so
// that batch runs can dump them as a textfile for node_exporter.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Table labels for section errors.
const (
	TablePAT = "pat"
	TablePMT = "pmt"
)

// Collector holds the counters for one process. A nil Collector discards
// every observation.
type Collector struct {
	registry *prometheus.Registry

	packetsDecoded   prometheus.Counter
	packetsMalformed prometheus.Counter
	sectionErrors    *prometheus.CounterVec
	continuityErrors prometheus.Counter
	packetsWritten   prometheus.Counter
}

// New registers the tsprobe counters on a fresh registry that carries no
// default process or Go collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		packetsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tsprobe",
			Name:      "packets_decoded_total",
			Help:      "Transport stream packets decoded from input.",
		}),
		packetsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tsprobe",
			Name:      "packets_malformed_total",
			Help:      "Input packets rejected for a bad sync byte or short read.",
		}),
		sectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsprobe",
			Name:      "section_errors_total",
			Help:      "PSI sections that failed to parse or carried a bad CRC.",
		}, []string{"table"}),
		continuityErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tsprobe",
			Name:      "continuity_errors_total",
			Help:      "Continuity counter discontinuities across all PIDs.",
		}),
		packetsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tsprobe",
			Name:      "packets_written_total",
			Help:      "Packets written by extraction.",
		}),
	}
	c.registry.MustRegister(
		c.packetsDecoded,
		c.packetsMalformed,
		c.sectionErrors,
		c.continuityErrors,
		c.packetsWritten,
	)
	return c
}

// Gatherer exposes the private registry.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.registry
}

func (c *Collector) PacketsDecoded(n int) {
	if c != nil {
		c.packetsDecoded.Add(float64(n))
	}
}

func (c *Collector) PacketsMalformed(n int) {
	if c != nil {
		c.packetsMalformed.Add(float64(n))
	}
}

// SectionError counts one failed section of table.
func (c *Collector) SectionError(table string) {
	if c != nil {
		c.sectionErrors.WithLabelValues(table).Inc()
	}
}

func (c *Collector) ContinuityErrors(n int) {
	if c != nil {
		c.continuityErrors.Add(float64(n))
	}
}

func (c *Collector) PacketsWritten(n int) {
	if c != nil {
		c.packetsWritten.Add(float64(n))
	}
}

// WriteTextfile writes the registry in the Prometheus text format to path.
// The file is written to a temporary name and renamed into place.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.Gatherer()); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
