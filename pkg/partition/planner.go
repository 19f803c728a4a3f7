package partition

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/mongosplit/pkg/errors"
	"github.com/ajitpratap0/mongosplit/pkg/metrics"
)

// Counter counts the documents matching a filter. store.Store satisfies it.
type Counter interface {
	Count(ctx context.Context, filter interface{}) (int64, error)
}

// Result is a computed plan together with the count it was derived from.
type Result struct {
	Total       int64
	WindowSize  int64
	Descriptors []Descriptor
}

// Planner issues the count query and derives the partition windows from it.
type Planner struct {
	logger    *zap.Logger
	collector *metrics.Collector
}

// NewPlanner creates a planner. A nil collector disables metrics.
func NewPlanner(logger *zap.Logger, collector *metrics.Collector) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{logger: logger, collector: collector}
}

// Plan counts the documents matching filter and splits them into partitions
// windows. The count is taken once; the plan is never refreshed.
func (p *Planner) Plan(ctx context.Context, counter Counter, filter interface{}, partitions int) (*Result, error) {
	if partitions < 1 {
		return nil, errors.New(errors.ErrorTypeConfig, "partitions must be at least 1").
			WithDetail("partitions", partitions)
	}

	timer := metrics.NewTimer()
	total, err := counter.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	countDuration := timer.Stop()
	if p.collector != nil {
		p.collector.ObserveCount(countDuration)
	}

	descriptors, err := Plan(total, partitions)
	if err != nil {
		return nil, err
	}
	if p.collector != nil {
		p.collector.PartitionsPlanned(len(descriptors))
	}

	result := &Result{
		Total:       total,
		WindowSize:  WindowSize(total, int64(partitions)),
		Descriptors: descriptors,
	}

	p.logger.Info("partition plan computed",
		zap.Int64("total", result.Total),
		zap.Int("partitions", partitions),
		zap.Int64("window_size", result.WindowSize),
		zap.Duration("count_duration", countDuration))

	return result, nil
}
