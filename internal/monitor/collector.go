package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/cloudmon/internal/model"
	"github.com/t77yq/cloudmon/internal/provider"
	"github.com/t77yq/cloudmon/internal/storage"
)

// Collector pulls samples from every provider source and writes them
// to the metric store
type Collector struct {
	logger    *zap.Logger
	store     storage.MetricStorage
	sources   []provider.Source
	retention time.Duration
}

// NewCollector creates a new metric collector
func NewCollector(store storage.MetricStorage, sources []provider.Source, retention time.Duration, logger *zap.Logger) *Collector {
	return &Collector{
		logger:    logger.Named("collector"),
		store:     store,
		sources:   sources,
		retention: retention,
	}
}

// CollectAll pulls from every source concurrently. A failing source is
// logged and skipped; it never blocks collection from the others. After
// all sources finish, samples older than the retention period are deleted.
func (c *Collector) CollectAll(ctx context.Context, now time.Time) {
	var wg sync.WaitGroup
	for _, src := range c.sources {
		wg.Add(1)
		go func(src provider.Source) {
			defer wg.Done()
			c.collectSource(ctx, src, now)
		}(src)
	}
	wg.Wait()

	if c.retention > 0 {
		if _, err := c.store.DeleteBefore(ctx, now.Add(-c.retention)); err != nil {
			c.logger.Error("Failed to clean up old metrics", zap.Error(err))
		}
	}
}

// collectSource pulls one provider and appends its samples
func (c *Collector) collectSource(ctx context.Context, src provider.Source, now time.Time) {
	raw, err := src.Pull(ctx)
	if err != nil {
		c.logger.Error("Failed to collect metrics from provider",
			zap.String("provider", string(src.Name())),
			zap.Error(err))
		return
	}

	stored := 0
	for _, r := range raw {
		sample := &model.MetricSample{
			Provider:     src.Name(),
			ResourceType: r.ResourceType,
			ResourceID:   r.ResourceID,
			MetricName:   r.MetricName,
			Value:        r.Value,
			Unit:         r.Unit,
			Timestamp:    now,
			Tags:         r.Tags,
		}
		if err := c.store.Append(ctx, sample); err != nil {
			c.logger.Error("Failed to store metric sample",
				zap.String("provider", string(src.Name())),
				zap.String("metric", r.MetricName),
				zap.Error(err))
			continue
		}
		stored++
	}

	c.logger.Debug("Collected metrics from provider",
		zap.String("provider", string(src.Name())),
		zap.Int("samples", stored))
}
