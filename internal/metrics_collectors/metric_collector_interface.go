package metrics_collectors

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// MetricCollector defines the interface for collecting a specific host metric.
type MetricCollector interface {
	Name() string                         // Name of the metric (e.g., "cpu", "memory")
	Collect(ctx context.Context) *float64 // Collect the metric, nil when unavailable
	Unit() string                         // Unit of the metric (e.g., "percentage", "count")
}

// MetricsRegistry holds the enabled collectors in registration order.
type MetricsRegistry struct {
	collectors []MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry(collectors ...MetricCollector) *MetricsRegistry {
	return &MetricsRegistry{collectors: collectors}
}

// Register adds a new metric collector to the registry.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors = append(r.collectors, collector)
}

// CollectAll runs every collector and returns the values that were available.
func (r *MetricsRegistry) CollectAll(ctx context.Context) map[string]float64 {
	values := make(map[string]float64, len(r.collectors))
	for _, c := range r.collectors {
		if v := c.Collect(ctx); v != nil {
			values[c.Name()] = *v
		}
	}
	return values
}

// NewHostMetrics builds a registry from metric names. diskPath is the
// filesystem measured by the "disk" collector.
func NewHostMetrics(names []string, diskPath string, logger zerolog.Logger) (*MetricsRegistry, error) {
	r := NewMetricsRegistry()
	for _, name := range names {
		switch name {
		case "cpu":
			r.Register(&CPUMetricCollector{Logger: logger})
		case "memory":
			r.Register(&MemoryMetricCollector{Logger: logger})
		case "disk":
			r.Register(&DiskMetricCollector{Path: diskPath, Logger: logger})
		case "goroutines":
			r.Register(&GoroutineMetricCollector{Logger: logger})
		default:
			return nil, fmt.Errorf("unknown host metric %q", name)
		}
	}
	return r, nil
}
