package core

import (
	"context"
)

// Record is a schema-less document as returned by the store
type Record map[string]interface{}

// Partition identifies one independently retrievable slice of a source.
// Hosts key partitions by ID; the concrete type belongs to the source.
type Partition interface {
	// ID returns the partition index, unique within one source
	ID() int
	// String returns a human readable description for logs
	String() string
}

// RecordIterator is a lazy, finite, forward-only sequence of records.
// It is not safe for concurrent use and cannot be restarted.
type RecordIterator interface {
	// HasNext reports whether Next will return a record. Calling it
	// repeatedly without Next returns the same answer and consumes nothing.
	HasNext() bool
	// Next consumes and returns the next record. It fails with an
	// exhausted error once HasNext has returned false, or with the
	// underlying failure if the stream broke.
	Next() (Record, error)
	// Err returns the failure that ended the stream early, if any
	Err() error
	// Close releases the underlying cursor. It is safe to call more than
	// once and after the iterator has been drained.
	Close() error
}

// PartitionSource is what a source must provide to be executed by a host
// engine: a stable list of partitions, and a lazy record sequence for any
// one of them.
type PartitionSource interface {
	// Partitions returns the partition plan. It performs no I/O and always
	// returns the same partitions in the same order.
	Partitions() []Partition
	// Compute opens a fresh record sequence for p. It may be called
	// concurrently for different partitions and re-issues the query on
	// every call.
	Compute(ctx context.Context, p Partition) (RecordIterator, error)
}
