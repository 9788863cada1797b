package model

import "time"

// Provider identifies the infrastructure provider a metric came from
type Provider string

const (
	ProviderAWS    Provider = "aws"
	ProviderAzure  Provider = "azure"
	ProviderGCP    Provider = "gcp"
	ProviderSystem Provider = "system"
	ProviderDocker Provider = "docker"
)

// ResourceType classifies the resource a metric was measured on
type ResourceType string

const (
	ResourceTypeCompute  ResourceType = "compute"
	ResourceTypeStorage  ResourceType = "storage"
	ResourceTypeNetwork  ResourceType = "network"
	ResourceTypeDatabase ResourceType = "database"
)

// RawSample is a single measurement as pulled from a provider source,
// before the collector stamps it with the provider name and timestamp
type RawSample struct {
	ResourceType ResourceType      `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	MetricName   string            `json:"metric_name"`
	Value        float64           `json:"value"`
	Unit         string            `json:"unit"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// MetricSample is an immutable measurement stored in the metric store
type MetricSample struct {
	Provider     Provider          `json:"provider"`
	ResourceType ResourceType      `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	MetricName   string            `json:"metric_name"`
	Value        float64           `json:"value"`
	Unit         string            `json:"unit"`
	Timestamp    time.Time         `json:"timestamp"`
	Tags         map[string]string `json:"tags,omitempty"`
}
