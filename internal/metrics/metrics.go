// ABOUTME: Prometheus collectors for the visualizer
// ABOUTME: Exposes engine and sink counters read at scrape time
package metrics

import (
	"fmt"
	"net/http"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/sink"
	"github.com/FruityPi/fruitypi-go/pkg/visualizer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fruitypi"

// EngineSource is the part of the capture engine the collectors read
type EngineSource interface {
	Stats() visualizer.Stats
	State() visualizer.State
	LastColor() color.Color
}

// SinkSource reports delivery counters
type SinkSource interface {
	Stats() sink.Stats
}

// Metrics holds the registry all collectors live in
type Metrics struct {
	registry *prometheus.Registry
}

// New registers engine and sink collectors. snk may be nil.
func New(engine EngineSource, snk SinkSource) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}

	counter := func(name, help string, read func(visualizer.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(engine.Stats())) })
	}

	cs := []prometheus.Collector{
		counter("buffers_filled_total", "Buffers completed by the capture device",
			func(s visualizer.Stats) uint64 { return s.BuffersFilled }),
		counter("empty_buffers_total", "Buffers completed with no audio",
			func(s visualizer.Stats) uint64 { return s.EmptyBuffers }),
		counter("colors_total", "Colors produced by the loudness filter",
			func(s visualizer.Stats) uint64 { return s.ColorsSent }),
		counter("format_errors_total", "Buffers skipped because of an unsupported sample width",
			func(s visualizer.Stats) uint64 { return s.FormatErrors }),
		counter("rearm_failures_total", "Buffers the device refused to take back",
			func(s visualizer.Stats) uint64 { return s.RearmFailures }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "state",
			Help:      "Engine state (0 uninitialized, 1 initialized, 2 running, 3 stopped, 4 closed)",
		}, func() float64 { return float64(engine.State()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "brightness",
			Help:      "Brightness of the last color, 0-255",
		}, func() float64 { return float64(engine.LastColor().Brightness()) }),
	}

	if snk != nil {
		cs = append(cs,
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sink",
				Name:      "sent_total",
				Help:      "Colors handed to the transports",
			}, func() float64 { return float64(snk.Stats().Sent) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sink",
				Name:      "dropped_total",
				Help:      "Colors the transports failed to deliver",
			}, func() float64 { return float64(snk.Stats().Dropped) }),
		)
	}

	for _, c := range cs {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return &Metrics{registry: registry}, nil
}

// Registry exposes the registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
