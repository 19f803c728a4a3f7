// Package store defines the document-store operations a partitioned source
// needs: count the documents matching a filter, and open a forward-only
// cursor over one skip/limit window of them.
package store

import (
	"context"
	"time"
)

// Cursor is a forward-only handle over an in-flight query. It holds server
// side resources until Close is called. *mongo.Cursor satisfies it.
type Cursor interface {
	// Next advances to the next document, fetching a new batch when needed
	Next(ctx context.Context) bool
	// Decode unmarshals the current document into v
	Decode(v interface{}) error
	// Err returns the error that stopped Next, if any
	Err() error
	// Close releases the cursor
	Close(ctx context.Context) error
}

// FindOptions tune a windowed find. Zero values leave the store defaults.
type FindOptions struct {
	Sort       interface{}
	Projection interface{}
	BatchSize  int32
}

// Store is a connection to one collection of a document store.
type Store interface {
	// Count returns the number of documents matching filter
	Count(ctx context.Context, filter interface{}) (int64, error)
	// Find skips offset matching documents and returns a cursor over at
	// most limit of the following ones. limit must be positive.
	Find(ctx context.Context, filter interface{}, offset, limit int64, opts FindOptions) (Cursor, error)
	// Close releases the connection
	Close(ctx context.Context) error
}

// Target names the collection to connect to.
type Target struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// Dialer opens a new Store. Every call returns an independent connection.
type Dialer func(ctx context.Context, target Target) (Store, error)
