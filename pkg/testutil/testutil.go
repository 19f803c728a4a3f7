// Package testutil provides testing utilities for mongosplit
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/mongosplit/pkg/config"
	"github.com/ajitpratap0/mongosplit/pkg/connector/core"
	"github.com/ajitpratap0/mongosplit/pkg/store/memstore"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// NumberedDocs returns n documents {_id: i, value: i} for i in [0, n)
func NumberedDocs(n int) []interface{} {
	docs := make([]interface{}, n)
	for i := 0; i < n; i++ {
		docs[i] = bson.D{{Key: "_id", Value: i}, {Key: "value", Value: i}}
	}
	return docs
}

// NumberedDataset returns an in-memory collection holding NumberedDocs(n)
func NumberedDataset(t *testing.T, n int) *memstore.Dataset {
	t.Helper()
	ds, err := memstore.NewDataset(NumberedDocs(n)...)
	require.NoError(t, err)
	return ds
}

// SourceConfig returns a valid source config for uri with the given
// partition count and no timeouts.
func SourceConfig(uri string, partitions int) *config.SourceConfig {
	cfg := config.NewSourceConfig("test")
	cfg.URI = uri
	cfg.Database = "test"
	cfg.Collection = "numbers"
	cfg.Partitions = partitions
	cfg.Timeouts = config.TimeoutConfig{}
	return cfg
}

// IDs extracts the _id field of each record as an int
func IDs(t *testing.T, records []core.Record) []int {
	t.Helper()
	ids := make([]int, 0, len(records))
	for _, rec := range records {
		ids = append(ids, Int(t, rec["_id"]))
	}
	return ids
}

// Int converts a decoded BSON number to int
func Int(t *testing.T, v interface{}) int {
	t.Helper()
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	t.Fatalf("not a number: %T %v", v, v)
	return 0
}
