package metrics_collectors

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
)

// CPUMetricCollector collects CPU usage across all cores.
type CPUMetricCollector struct {
	Logger zerolog.Logger
}

func (c *CPUMetricCollector) Name() string { return "cpu" }
func (c *CPUMetricCollector) Unit() string { return "percentage" }

func (c *CPUMetricCollector) Collect(ctx context.Context) *float64 {
	cpuPercentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		c.Logger.Error().Err(err).Msg("Failed to get CPU usage")
		return nil
	}
	if len(cpuPercentages) == 0 {
		c.Logger.Warn().Msg("CPU usage data is empty")
		return nil
	}
	return &cpuPercentages[0]
}

// MemoryMetricCollector collects the percentage of used virtual memory.
type MemoryMetricCollector struct {
	Logger zerolog.Logger
}

func (m *MemoryMetricCollector) Name() string { return "memory" }
func (m *MemoryMetricCollector) Unit() string { return "percentage" }

func (m *MemoryMetricCollector) Collect(ctx context.Context) *float64 {
	memStats, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to retrieve memory statistics")
		return nil
	}
	return &memStats.UsedPercent
}

// DiskMetricCollector collects usage of the filesystem holding Path.
type DiskMetricCollector struct {
	Path   string
	Logger zerolog.Logger
}

func (d *DiskMetricCollector) Name() string { return "disk" }
func (d *DiskMetricCollector) Unit() string { return "percentage" }

func (d *DiskMetricCollector) Collect(ctx context.Context) *float64 {
	path := d.Path
	if path == "" {
		path = "/"
	}
	diskStats, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		d.Logger.Error().Err(err).Str("path", path).Msg("Failed to get disk usage")
		return nil
	}
	return &diskStats.UsedPercent
}

// GoroutineMetricCollector collects the number of active goroutines.
type GoroutineMetricCollector struct {
	Logger zerolog.Logger
}

func (g *GoroutineMetricCollector) Name() string { return "goroutines" }
func (g *GoroutineMetricCollector) Unit() string { return "count" }

func (g *GoroutineMetricCollector) Collect(context.Context) *float64 {
	n := float64(runtime.NumGoroutine())
	g.Logger.Debug().Float64("goroutines", n).Msg("Goroutine count collected")
	return &n
}
