package provider

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/t77yq/cloudmon/internal/model"
)

// metricSpec bounds the simulated value range for one metric type
type metricSpec struct {
	name string
	unit string
	min  float64
	max  float64
}

var simulatedMetrics = []metricSpec{
	{name: "cpu_usage", unit: "percent", min: 10, max: 95},
	{name: "memory_usage", unit: "percent", min: 20, max: 90},
	{name: "network_in", unit: "bytes", min: 1000, max: 1000000},
	{name: "network_out", unit: "bytes", min: 1000, max: 1000000},
	{name: "disk_read", unit: "bytes", min: 0, max: 100000},
	{name: "disk_write", unit: "bytes", min: 0, max: 100000},
	{name: "error_rate", unit: "percent", min: 0, max: 10},
	{name: "response_time", unit: "milliseconds", min: 50, max: 5000},
	{name: "availability", unit: "percent", min: 95, max: 100},
}

// SimulatedSource generates random samples in place of real cloud
// provider API calls. Any Source implementation with real API access
// can be substituted without touching the rest of the engine.
type SimulatedSource struct {
	provider model.Provider
	rng      *rand.Rand
}

// NewSimulatedSource creates a simulated source for the given provider
func NewSimulatedSource(provider model.Provider, seed int64) *SimulatedSource {
	return &SimulatedSource{
		provider: provider,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Name implements Source.Name
func (s *SimulatedSource) Name() model.Provider {
	return s.provider
}

// Pull implements Source.Pull
func (s *SimulatedSource) Pull(ctx context.Context) ([]model.RawSample, error) {
	samples := make([]model.RawSample, 0, len(simulatedMetrics))

	for _, spec := range simulatedMetrics {
		value := s.rng.Float64()*(spec.max-spec.min) + spec.min

		samples = append(samples, model.RawSample{
			ResourceType: model.ResourceTypeCompute,
			ResourceID:   fmt.Sprintf("%s-instance-%d", s.provider, s.rng.Intn(10)+1),
			MetricName:   spec.name,
			Value:        math.Round(value*100) / 100,
			Unit:         spec.unit,
			Tags: map[string]string{
				"environment": "production",
				"region":      fmt.Sprintf("%s-us-east-1", s.provider),
			},
		})
	}

	return samples, nil
}
