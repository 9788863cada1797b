package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/t77yq/cloudmon/internal/model"
)

// DockerSource pulls per-container CPU and memory metrics from the
// local Docker daemon
type DockerSource struct {
	docker *client.Client
}

// NewDockerSource creates a source backed by the local Docker daemon
func NewDockerSource() (*DockerSource, error) {
	docker, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &DockerSource{docker: docker}, nil
}

// Name implements Source.Name
func (s *DockerSource) Name() model.Provider {
	return model.ProviderDocker
}

// Pull implements Source.Pull
func (s *DockerSource) Pull(ctx context.Context) ([]model.RawSample, error) {
	containers, err := s.docker.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var samples []model.RawSample
	for _, c := range containers {
		stats, err := s.containerStats(ctx, c.ID)
		if err != nil {
			return samples, fmt.Errorf("failed to read stats for container %s: %w", c.ID[:12], err)
		}

		name := c.ID[:12]
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		tags := map[string]string{"image": c.Image}

		samples = append(samples,
			model.RawSample{
				ResourceType: model.ResourceTypeCompute,
				ResourceID:   name,
				MetricName:   "cpu_usage",
				Value:        cpuPercent(stats),
				Unit:         "percent",
				Tags:         tags,
			},
			model.RawSample{
				ResourceType: model.ResourceTypeCompute,
				ResourceID:   name,
				MetricName:   "memory_usage",
				Value:        memoryPercent(stats),
				Unit:         "percent",
				Tags:         tags,
			},
		)
	}

	return samples, nil
}

func (s *DockerSource) containerStats(ctx context.Context, containerID string) (*container.StatsResponse, error) {
	resp, err := s.docker.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode container stats: %w", err)
	}
	return &stats, nil
}

func cpuPercent(stats *container.StatsResponse) float64 {
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage - stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage - stats.PreCPUStats.SystemUsage)
	if systemDelta <= 0 || cpuDelta < 0 {
		return 0
	}

	cpus := float64(stats.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}
	return cpuDelta / systemDelta * cpus * 100
}

func memoryPercent(stats *container.StatsResponse) float64 {
	if stats.MemoryStats.Limit == 0 {
		return 0
	}
	return float64(stats.MemoryStats.Usage) / float64(stats.MemoryStats.Limit) * 100
}

// Close releases the Docker client connection
func (s *DockerSource) Close() error {
	return s.docker.Close()
}
