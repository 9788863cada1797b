package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/t77yq/cloudmon/internal/model"
)

// SystemSource pulls CPU, memory and disk metrics from the local host
type SystemSource struct {
	hostname string
}

// NewSystemSource creates a source reporting local host metrics
func NewSystemSource() *SystemSource {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return &SystemSource{hostname: hostname}
}

// Name implements Source.Name
func (s *SystemSource) Name() model.Provider {
	return model.ProviderSystem
}

// Pull implements Source.Pull
func (s *SystemSource) Pull(ctx context.Context) ([]model.RawSample, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU usage: %w", err)
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory usage: %w", err)
	}

	samples := []model.RawSample{
		{
			ResourceType: model.ResourceTypeCompute,
			ResourceID:   s.hostname,
			MetricName:   "cpu_usage",
			Value:        cpuPercent[0],
			Unit:         "percent",
		},
		{
			ResourceType: model.ResourceTypeCompute,
			ResourceID:   s.hostname,
			MetricName:   "memory_usage",
			Value:        memInfo.UsedPercent,
			Unit:         "percent",
		},
	}

	// Disk usage is best-effort; some environments restrict statfs
	if diskInfo, err := disk.UsageWithContext(ctx, "/"); err == nil {
		samples = append(samples, model.RawSample{
			ResourceType: model.ResourceTypeStorage,
			ResourceID:   s.hostname,
			MetricName:   "disk_usage",
			Value:        diskInfo.UsedPercent,
			Unit:         "percent",
		})
	}

	return samples, nil
}
