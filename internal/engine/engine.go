// Package engine is a small host for partitioned sources. A Context owns a
// bounded worker pool and a job id; jobs fan out one task per partition,
// compute the partition's iterator on a worker and always close it.
//
// A Context is created explicitly with New and passed to whatever needs it;
// there is no process-wide instance.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongosplit/pkg/connector/core"
	"github.com/ajitpratap0/mongosplit/pkg/errors"
	"github.com/ajitpratap0/mongosplit/pkg/logger"
	"github.com/ajitpratap0/mongosplit/pkg/observability"
)

// Config configures an execution context
type Config struct {
	// Name labels the context in logs
	Name string `yaml:"name" json:"name"`
	// Workers bounds how many partitions run at once (0 = NumCPU)
	Workers int `yaml:"workers" json:"workers"`
	// ReleaseTimeout bounds waiting for running tasks on Close
	ReleaseTimeout time.Duration `yaml:"release_timeout" json:"release_timeout"`
}

// Context executes partition tasks on a bounded pool.
type Context struct {
	name    string
	jobID   string
	workers int
	release time.Duration

	pool   *ants.Pool
	logger *zap.Logger
	closed atomic.Bool
}

// PartitionFunc consumes one partition's records. The iterator is closed by
// the engine after fn returns.
type PartitionFunc func(ctx context.Context, p core.Partition, it core.RecordIterator) error

// New creates an execution context. A nil logger uses logger.Get().
func New(cfg Config, log *zap.Logger) (*Context, error) {
	if cfg.Workers < 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "workers cannot be negative").
			WithDetail("workers", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ReleaseTimeout == 0 {
		cfg.ReleaseTimeout = 3 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "mongosplit"
	}
	if log == nil {
		log = logger.Get()
	}

	jobID := uuid.NewString()
	log = log.With(zap.String("engine", cfg.Name), zap.String("job_id", jobID))

	pool, err := ants.NewPool(cfg.Workers, ants.WithPanicHandler(func(v any) {
		log.Error("partition task panic escaped", zap.Any("panic", v))
	}))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create worker pool")
	}

	log.Debug("execution context created", zap.Int("workers", cfg.Workers))

	return &Context{
		name:    cfg.Name,
		jobID:   jobID,
		workers: cfg.Workers,
		release: cfg.ReleaseTimeout,
		pool:    pool,
		logger:  log,
	}, nil
}

// JobID returns the id attached to every log line and context of this engine
func (c *Context) JobID() string {
	return c.jobID
}

// Workers returns the pool size
func (c *Context) Workers() int {
	return c.workers
}

// Close releases the worker pool. It is safe to call more than once.
func (c *Context) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.pool.ReleaseTimeout(c.release); err != nil {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "worker pool did not drain")
	}
	c.logger.Debug("execution context closed")
	return nil
}

// ForEachPartition computes every partition of src on the pool and hands its
// iterator to fn. The first failure cancels the remaining tasks; all failures
// are returned joined once every task has finished.
func (c *Context) ForEachPartition(ctx context.Context, src core.PartitionSource, fn PartitionFunc) error {
	if c.closed.Load() {
		return errors.New(errors.ErrorTypeConfig, "execution context is closed")
	}

	parts := src.Partitions()
	start := time.Now()

	ctx = context.WithValue(ctx, logger.JobIDKey, c.jobID)
	ctx, span := observability.Tracer().Start(ctx, "engine.job")
	span.SetAttributes(
		attribute.String("job.id", c.jobID),
		attribute.Int("job.partitions", len(parts)),
	)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, len(parts))
	var wg sync.WaitGroup

	for i, p := range parts {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = errors.Newf(errors.ErrorTypeInternal, "partition %d panicked: %v", p.ID(), r)
					cancel()
				}
			}()

			if err := c.runPartition(jobCtx, src, p, fn); err != nil {
				errs[i] = err
				cancel()
			}
		}
		if err := c.pool.Submit(task); err != nil {
			wg.Done()
			errs[i] = errors.Wrap(err, errors.ErrorTypeInternal, "failed to schedule partition").
				WithDetail("partition", p.ID())
			cancel()
		}
	}
	wg.Wait()

	err := joinErrors(ctx, errs)
	observability.EndSpan(span, err)

	fields := []zap.Field{
		zap.Int("partitions", len(parts)),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		c.logger.Error("job failed", append(fields, zap.Error(err))...)
	} else {
		c.logger.Info("job completed", fields...)
	}
	return err
}

func (c *Context) runPartition(ctx context.Context, src core.PartitionSource, p core.Partition, fn PartitionFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	it, err := src.Compute(ctx, p)
	if err != nil {
		return fmt.Errorf("partition %d: %w", p.ID(), err)
	}
	defer func() {
		if cerr := it.Close(); cerr != nil {
			c.logger.Warn("failed to close partition iterator",
				zap.Int("partition", p.ID()), zap.Error(cerr))
		}
	}()

	if err := fn(ctx, p, it); err != nil {
		return fmt.Errorf("partition %d: %w", p.ID(), err)
	}
	return nil
}

// joinErrors drops cancellations caused by a sibling's failure and joins the
// rest. If the caller cancelled, its context error is kept.
func joinErrors(parent context.Context, errs []error) error {
	var failures, cancellations []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) && parent.Err() == nil {
			cancellations = append(cancellations, err)
			continue
		}
		failures = append(failures, err)
	}
	if len(failures) == 0 {
		failures = cancellations
	}
	return errors.Join(failures...)
}
