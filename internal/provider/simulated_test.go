package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/cloudmon/internal/model"
)

func TestSimulatedSource_Pull(t *testing.T) {
	source := NewSimulatedSource(model.ProviderAWS, 1)
	assert.Equal(t, model.ProviderAWS, source.Name())

	samples, err := source.Pull(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, len(simulatedMetrics))

	byName := make(map[string]model.RawSample)
	for _, s := range samples {
		byName[s.MetricName] = s
	}

	for _, spec := range simulatedMetrics {
		sample, ok := byName[spec.name]
		require.True(t, ok, "missing metric %s", spec.name)
		assert.Equal(t, spec.unit, sample.Unit)
		assert.GreaterOrEqual(t, sample.Value, spec.min)
		assert.LessOrEqual(t, sample.Value, spec.max)
		assert.NotEmpty(t, sample.ResourceID)
		assert.Equal(t, "production", sample.Tags["environment"])
	}
}

func TestSimulatedSource_Deterministic(t *testing.T) {
	a := NewSimulatedSource(model.ProviderGCP, 42)
	b := NewSimulatedSource(model.ProviderGCP, 42)

	samplesA, err := a.Pull(context.Background())
	require.NoError(t, err)
	samplesB, err := b.Pull(context.Background())
	require.NoError(t, err)

	assert.Equal(t, samplesA, samplesB)
}
