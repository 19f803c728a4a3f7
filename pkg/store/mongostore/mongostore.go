// Package mongostore implements store.Store on top of the official MongoDB
// Go driver.
package mongostore

import (
	"context"
	stderrors "errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ajitpratap0/mongosplit/pkg/connector/registry"
	"github.com/ajitpratap0/mongosplit/pkg/errors"
	"github.com/ajitpratap0/mongosplit/pkg/store"
)

// Store is a single client connection scoped to one collection
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	target     store.Target
}

var _ store.Store = (*Store)(nil)

// Dial connects to target.URI and verifies the deployment is reachable.
func Dial(ctx context.Context, target store.Target) (store.Store, error) {
	clientOpts := options.Client().ApplyURI(target.URI)
	if target.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(target.ConnectTimeout)
		clientOpts.SetServerSelectionTimeout(target.ConnectTimeout)
	}
	if err := clientOpts.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid connection string")
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to MongoDB").
			WithDetail("database", target.Database)
	}

	if err := client.Ping(ctx, readpref.PrimaryPreferred()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to ping MongoDB").
			WithDetail("database", target.Database)
	}

	return &Store{
		client:     client,
		collection: client.Database(target.Database).Collection(target.Collection),
		target:     target,
	}, nil
}

// Count counts matching documents with CountDocuments, which is exact
// unlike the collection metadata estimate.
func (s *Store) Count(ctx context.Context, filter interface{}) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, classify(err, "count failed").
			WithDetail("collection", s.target.Collection)
	}
	return n, nil
}

// Find opens collection.find(filter).skip(offset).limit(limit).
func (s *Store) Find(ctx context.Context, filter interface{}, offset, limit int64, opts store.FindOptions) (store.Cursor, error) {
	if limit <= 0 {
		// MongoDB reads limit(0) as "no limit"
		return nil, errors.New(errors.ErrorTypeInternal, "find window must be positive").
			WithDetail("limit", limit)
	}

	findOpts := options.Find().SetSkip(offset).SetLimit(limit)
	if opts.BatchSize > 0 {
		findOpts.SetBatchSize(opts.BatchSize)
	}
	if opts.Sort != nil {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Projection != nil {
		findOpts.SetProjection(opts.Projection)
	}

	cur, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, classify(err, "find failed").
			WithDetail("collection", s.target.Collection).
			WithDetail("offset", offset).
			WithDetail("limit", limit)
	}
	return cur, nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to disconnect from MongoDB")
	}
	return nil
}

// classify maps driver errors onto the connection/query split: network and
// timeout failures mean the store was unreachable, anything else is a
// problem with the query itself.
func classify(err error, msg string) *errors.Error {
	switch {
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return errors.Wrap(err, errors.ErrorTypeConnection, msg)
	case stderrors.Is(err, mongo.ErrClientDisconnected):
		return errors.Wrap(err, errors.ErrorTypeConnection, msg)
	default:
		return errors.Wrap(err, errors.ErrorTypeQuery, msg)
	}
}

func init() {
	// Register both connection string schemes with the store registry
	_ = registry.RegisterStore("mongodb", Dial)
	_ = registry.RegisterStore("mongodb+srv", Dial)
}
