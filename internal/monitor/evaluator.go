package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/cloudmon/internal/model"
	"github.com/t77yq/cloudmon/internal/storage"
)

// maxWindowSamples caps how many recent points feed one aggregation
const maxWindowSamples = 10

// Evaluator aggregates recent samples for a rule and applies its
// threshold comparison
type Evaluator struct {
	logger *zap.Logger
	store  storage.MetricStorage
}

// NewEvaluator creates a new evaluator reading from the given store
func NewEvaluator(store storage.MetricStorage, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.Named("evaluator"),
		store:  store,
	}
}

// Evaluate queries the rule's sliding window, computes the mean value
// and compares it against the threshold. The most recent sample is
// returned as the representative sample. An empty window yields
// conditionMet=false: no data is not an alertable condition.
func (e *Evaluator) Evaluate(ctx context.Context, rule *model.AlertRule, now time.Time) (bool, *model.MetricSample, error) {
	from := now.Add(-rule.Window())
	samples, err := e.store.Query(ctx, rule.MetricName, from, now, maxWindowSamples)
	if err != nil {
		return false, nil, fmt.Errorf("failed to query window for rule %s: %w", rule.ID, err)
	}

	if len(samples) == 0 {
		e.logger.Debug("No samples in window",
			zap.String("rule_id", rule.ID),
			zap.String("metric", rule.MetricName))
		return false, nil, nil
	}

	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	mean := sum / float64(len(samples))

	met := compare(rule.Condition, mean, rule.Threshold)

	e.logger.Debug("Rule evaluated",
		zap.String("rule_id", rule.ID),
		zap.Float64("mean", mean),
		zap.Float64("threshold", rule.Threshold),
		zap.Bool("condition_met", met))

	// samples are newest-first, so the representative sample is the head
	return met, samples[0], nil
}

func compare(condition model.AlertCondition, value, threshold float64) bool {
	switch condition {
	case model.ConditionGreaterThan:
		return value > threshold
	case model.ConditionLessThan:
		return value < threshold
	case model.ConditionEqual:
		return value == threshold
	case model.ConditionGreaterEqual:
		return value >= threshold
	case model.ConditionLessEqual:
		return value <= threshold
	default:
		return false
	}
}
