package mongodb

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongosplit/pkg/connector/core"
	"github.com/ajitpratap0/mongosplit/pkg/errors"
	"github.com/ajitpratap0/mongosplit/pkg/observability"
	"github.com/ajitpratap0/mongosplit/pkg/partition"
	"github.com/ajitpratap0/mongosplit/pkg/store"
)

// releaseTimeout bounds closing the cursor and connection, which may happen
// after the caller's context has been cancelled.
const releaseTimeout = 5 * time.Second

// RecordIterator is a lazy iterator over one partition window. It owns the
// cursor and the connection it was opened on and releases both exactly once:
// when the window is exhausted, when the cursor fails, or on Close.
//
// A RecordIterator is not safe for concurrent use.
type RecordIterator struct {
	ctx        context.Context
	descriptor partition.Descriptor
	source     *Source
	conn       store.Store
	cursor     store.Cursor
	span       trace.Span
	logger     *zap.Logger

	next    core.Record
	peeked  bool
	done    bool
	err     error
	yielded int64

	closeOnce sync.Once
	closeErr  error
}

func newRecordIterator(ctx context.Context, s *Source, d partition.Descriptor, conn store.Store, cur store.Cursor, span trace.Span, log *zap.Logger) *RecordIterator {
	return &RecordIterator{
		ctx:        ctx,
		descriptor: d,
		source:     s,
		conn:       conn,
		cursor:     cur,
		span:       span,
		logger:     log,
	}
}

// Partition returns the descriptor this iterator reads
func (it *RecordIterator) Partition() partition.Descriptor {
	return it.descriptor
}

// HasNext reports whether another record is available, fetching it from the
// cursor if needed. Repeated calls without Next do not advance the cursor.
func (it *RecordIterator) HasNext() bool {
	if it.peeked {
		return true
	}
	if it.done {
		return false
	}

	ctx, cancel := it.source.requestContext(it.ctx)
	ok := it.cursor.Next(ctx)
	cancel()

	if !ok {
		if err := it.cursor.Err(); err != nil {
			it.fail(errors.Wrap(err, errors.ErrorTypeQuery, "partition cursor failed"))
		} else {
			it.finish()
		}
		return false
	}

	var rec core.Record
	if err := it.cursor.Decode(&rec); err != nil {
		it.fail(errors.Wrap(err, errors.ErrorTypeQuery, "failed to decode record"))
		return false
	}

	it.next = rec
	it.peeked = true
	return true
}

// Next returns the next record. It fails with an exhausted error when no
// record remains, or with the cursor failure if the stream broke.
func (it *RecordIterator) Next() (core.Record, error) {
	if !it.HasNext() {
		if it.err != nil {
			return nil, it.err
		}
		return nil, errors.New(errors.ErrorTypeExhausted, "partition iterator exhausted").
			WithDetail("partition", it.descriptor.Index)
	}

	rec := it.next
	it.next = nil
	it.peeked = false
	it.yielded++
	it.source.collector.RecordRead()
	return rec, nil
}

// Err returns the failure that ended the stream early, if any
func (it *RecordIterator) Err() error {
	return it.err
}

// Close releases the cursor and then the connection. It is safe to call
// more than once; only the first call does any work.
func (it *RecordIterator) Close() error {
	it.done = true
	it.peeked = false
	it.next = nil
	it.release()
	return it.closeErr
}

func (it *RecordIterator) finish() {
	it.done = true
	it.release()
}

func (it *RecordIterator) fail(err error) {
	it.err = err
	it.done = true
	it.logger.Error("partition iteration failed",
		zap.Int64("records_yielded", it.yielded),
		zap.Error(err))
	it.release()
}

func (it *RecordIterator) release() {
	it.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(it.ctx), releaseTimeout)
		defer cancel()

		var errs []error
		if err := it.cursor.Close(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeConnection, "failed to close cursor"))
		}
		if err := it.conn.Close(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeConnection, "failed to disconnect"))
		}
		it.closeErr = errors.Join(errs...)
		it.source.collector.CursorClosed()

		it.span.SetAttributes(attribute.Int64("records", it.yielded))
		observability.EndSpan(it.span, it.err)

		it.logger.Debug("partition cursor released",
			zap.Int64("records_yielded", it.yielded),
			zap.Bool("failed", it.err != nil))
	})
}

var _ core.RecordIterator = (*RecordIterator)(nil)
