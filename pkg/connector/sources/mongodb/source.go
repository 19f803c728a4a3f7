// Package mongodb implements a partitioned MongoDB source. At construction it
// counts the documents matching the configured filter once and splits them
// into equally sized skip/limit windows. Each window is computed on demand by
// Compute, which opens a fresh connection and cursor and returns a lazy
// iterator over that window.
//
// Basic usage:
//
//	cfg := config.NewSourceConfig("orders")
//	cfg.URI = "mongodb://localhost:27017"
//	cfg.Database = "shop"
//	cfg.Collection = "orders"
//	cfg.Partitions = 4
//
//	src, err := mongodb.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	for _, p := range src.Partitions() {
//	    it, err := src.Compute(ctx, p)
//	    if err != nil {
//	        return err
//	    }
//	    for rec, err := range core.Records(it) {
//	        ...
//	    }
//	}
//
// The plan is fixed at construction. Writes to the collection between planning
// and computing may shift documents across windows, so a record can be read
// twice or not at all; sort on a unique field and read a quiescent collection
// when exact coverage matters.
package mongodb

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongosplit/pkg/config"
	"github.com/ajitpratap0/mongosplit/pkg/connector/core"
	"github.com/ajitpratap0/mongosplit/pkg/connector/registry"
	"github.com/ajitpratap0/mongosplit/pkg/errors"
	"github.com/ajitpratap0/mongosplit/pkg/logger"
	"github.com/ajitpratap0/mongosplit/pkg/metrics"
	"github.com/ajitpratap0/mongosplit/pkg/observability"
	"github.com/ajitpratap0/mongosplit/pkg/partition"
	"github.com/ajitpratap0/mongosplit/pkg/store"

	_ "github.com/ajitpratap0/mongosplit/pkg/store/mongostore" // mongodb:// and mongodb+srv://
)

// ConnectorType names this source in logs, metrics and spans
const ConnectorType = "mongodb"

// Source is a partitioned, read-only view of one MongoDB collection.
// It is safe for concurrent use; all state is fixed after New returns.
type Source struct {
	name   string
	target store.Target
	filter interface{}
	find   store.FindOptions

	requestTimeout time.Duration

	plan       []partition.Descriptor
	partitions []core.Partition
	total      int64
	windowSize int64

	dial      store.Dialer
	logger    *zap.Logger
	collector *metrics.Collector
	tracer    *observability.SourceTracer

	closed atomic.Bool
}

// Option customizes a Source
type Option func(*options)

type options struct {
	dialer    store.Dialer
	logger    *zap.Logger
	collector *metrics.Collector
	tracer    trace.Tracer
	filter    interface{}
}

// WithDialer replaces the scheme registry as the way connections are opened
func WithDialer(d store.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithLogger sets the logger; logger.Get() is used otherwise
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCollector sets the metrics collector; one named after the source is
// created otherwise
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithTracer sets the tracer spans are started from
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithFilter passes filter to the store verbatim instead of parsing the
// configured extended JSON filter.
func WithFilter(filter interface{}) Option {
	return func(o *options) { o.filter = filter }
}

// New validates cfg, counts the matching documents and computes the
// partition plan. It fails with a config error before any network call when
// cfg is invalid, and with a connection error when the store cannot be
// reached or counted.
func New(ctx context.Context, cfg *config.SourceConfig, opts ...Option) (*Source, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "source config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{dialer: registry.Dial}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}
	if o.collector == nil {
		o.collector = metrics.NewCollector(cfg.Name)
	}

	filter := o.filter
	if filter == nil {
		parsed, err := cfg.ParseFilter()
		if err != nil {
			return nil, err
		}
		filter = parsed
	}
	sortSpec, err := cfg.ParseSort()
	if err != nil {
		return nil, err
	}
	projection, err := cfg.ParseProjection()
	if err != nil {
		return nil, err
	}

	s := &Source{
		name: cfg.Name,
		target: store.Target{
			URI:            cfg.URI,
			Database:       cfg.Database,
			Collection:     cfg.Collection,
			ConnectTimeout: cfg.Timeouts.Connection,
		},
		filter:         filter,
		requestTimeout: cfg.Timeouts.Request,
		dial:           o.dialer,
		logger:         o.logger.With(zap.String("source", cfg.Name)),
		collector:      o.collector,
		tracer:         observability.NewSourceTracer(ConnectorType, cfg.Name, o.tracer),
	}
	// Typed nils would reach the driver as non-nil interfaces.
	if sortSpec != nil {
		s.find.Sort = sortSpec
	}
	if projection != nil {
		s.find.Projection = projection
	}
	s.find.BatchSize = cfg.BatchSize

	if err := s.computePlan(ctx, cfg.Partitions, cfg.Timeouts.Count); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) computePlan(ctx context.Context, partitions int, countTimeout time.Duration) (err error) {
	ctx = s.withLogContext(ctx)
	log := logger.FromContext(ctx, s.logger)

	ctx, span := s.tracer.StartSpan(ctx, "plan", attribute.Int("partitions", partitions))
	defer func() { observability.EndSpan(span, err) }()

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Warn("failed to disconnect after count", zap.Error(cerr))
		}
	}()

	countCtx := ctx
	if countTimeout > 0 {
		var cancel context.CancelFunc
		countCtx, cancel = context.WithTimeout(ctx, countTimeout)
		defer cancel()
	}

	planner := partition.NewPlanner(log, s.collector)
	result, err := planner.Plan(countCtx, conn, s.filter, partitions)
	if err != nil {
		return asConnection(err, "failed to count documents")
	}

	s.total = result.Total
	s.windowSize = result.WindowSize
	s.plan = result.Descriptors
	s.partitions = make([]core.Partition, len(result.Descriptors))
	for i, d := range result.Descriptors {
		s.partitions[i] = d
	}

	span.SetAttributes(
		attribute.Int64("total", s.total),
		attribute.Int64("window_size", s.windowSize),
	)
	return nil
}

// connect dials a new, unshared connection bounded by the connection timeout
func (s *Source) connect(ctx context.Context) (store.Store, error) {
	dialCtx := ctx
	if s.target.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.target.ConnectTimeout)
		defer cancel()
	}
	conn, err := s.dial(dialCtx, s.target)
	if err != nil {
		return nil, asConnection(err, "failed to connect to store")
	}
	return conn, nil
}

// Name returns the configured source name
func (s *Source) Name() string {
	return s.name
}

// Partitions returns the partition plan. It performs no I/O; every call
// returns the same partitions in index order.
func (s *Source) Partitions() []core.Partition {
	out := make([]core.Partition, len(s.partitions))
	copy(out, s.partitions)
	return out
}

// Descriptors returns the plan as typed descriptors
func (s *Source) Descriptors() []partition.Descriptor {
	out := make([]partition.Descriptor, len(s.plan))
	copy(out, s.plan)
	return out
}

// TotalCount returns the document count the plan was derived from
func (s *Source) TotalCount() int64 {
	return s.total
}

// WindowSize returns the per-partition window size
func (s *Source) WindowSize() int64 {
	return s.windowSize
}

// Compute opens a fresh connection and cursor for p and returns a lazy
// iterator over its window. ctx bounds the dial, the find and every later
// round-trip of the iterator. The query is re-issued on every call.
func (s *Source) Compute(ctx context.Context, p core.Partition) (core.RecordIterator, error) {
	if s.closed.Load() {
		return nil, errors.New(errors.ErrorTypeConfig, "source is closed")
	}
	d, err := s.descriptor(p)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(s.withLogContext(ctx), logger.PartitionKey, d.Index)
	log := logger.FromContext(ctx, s.logger)

	// limit(0) means "no limit" to MongoDB, so an empty window never reaches it.
	if d.Empty() {
		s.collector.EmptyPartition()
		log.Debug("empty partition, skipping query")
		return core.NewSliceIterator(nil), nil
	}

	ctx, span := s.tracer.StartSpan(ctx, "partition",
		attribute.Int("partition.index", d.Index),
		attribute.Int64("partition.offset", d.Offset),
		attribute.Int64("partition.window", d.WindowSize),
	)

	timer := metrics.NewTimer()
	conn, err := s.connect(ctx)
	if err != nil {
		s.collector.CursorOpenFailed()
		observability.EndSpan(span, err)
		return nil, err
	}

	findCtx, cancel := s.requestContext(ctx)
	cur, err := conn.Find(findCtx, s.filter, d.Offset, d.WindowSize, s.find)
	cancel()
	if err != nil {
		_ = conn.Close(context.WithoutCancel(ctx))
		s.collector.CursorOpenFailed()
		err = asConnection(err, "failed to open partition cursor")
		observability.EndSpan(span, err)
		log.Error("failed to open partition cursor", zap.Error(err))
		return nil, err
	}
	s.collector.CursorOpened(timer.Stop())

	log.Info("iterating partition",
		zap.Int64("offset", d.Offset),
		zap.Int64("window_size", d.WindowSize))

	return newRecordIterator(ctx, s, d, conn, cur, span, log), nil
}

// Close marks the source closed. Iterators already handed out stay usable
// and must still be closed by their callers.
func (s *Source) Close(_ context.Context) error {
	if s.closed.CompareAndSwap(false, true) {
		s.logger.Debug("source closed", zap.Any("metrics", s.collector.GetAll()))
	}
	return nil
}

// withLogContext tags ctx with the connector and collection for
// logger.FromContext
func (s *Source) withLogContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, logger.ConnectorKey, ConnectorType)
	return context.WithValue(ctx, logger.CollectionKey, s.target.Database+"."+s.target.Collection)
}

// descriptor resolves p against this source's plan
func (s *Source) descriptor(p core.Partition) (partition.Descriptor, error) {
	var d partition.Descriptor
	switch v := p.(type) {
	case partition.Descriptor:
		d = v
	case *partition.Descriptor:
		if v == nil {
			return d, errors.New(errors.ErrorTypeConfig, "nil partition")
		}
		d = *v
	default:
		return d, errors.Newf(errors.ErrorTypeConfig, "unsupported partition type %T", p)
	}

	if d.Index < 0 || d.Index >= len(s.plan) || !s.plan[d.Index].Equal(d) {
		return d, errors.New(errors.ErrorTypeConfig, "partition does not belong to this source").
			WithDetail("partition", d.String())
	}
	return d, nil
}

func (s *Source) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout > 0 {
		return context.WithTimeout(ctx, s.requestTimeout)
	}
	return ctx, func() {}
}

// asConnection keeps typed store errors and treats anything else as the
// store being unreachable.
func asConnection(err error, message string) error {
	var typed *errors.Error
	if errors.As(err, &typed) {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, message)
}

var _ core.PartitionSource = (*Source)(nil)
