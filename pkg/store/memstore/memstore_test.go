package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ajitpratap0/mongosplit/pkg/connector/registry"
	"github.com/ajitpratap0/mongosplit/pkg/errors"
	"github.com/ajitpratap0/mongosplit/pkg/store"
)

func fixture(t *testing.T, n int) *Dataset {
	t.Helper()
	docs := make([]interface{}, n)
	for i := range docs {
		docs[i] = bson.M{"_id": i, "value": i, "name": "doc"}
	}
	ds, err := NewDataset(docs...)
	require.NoError(t, err)
	return ds
}

func drain(t *testing.T, cur store.Cursor) []int {
	t.Helper()
	ctx := context.Background()
	var values []int
	for cur.Next(ctx) {
		var doc struct {
			Value int `bson:"value"`
		}
		require.NoError(t, cur.Decode(&doc))
		values = append(values, doc.Value)
	}
	require.NoError(t, cur.Err())
	require.NoError(t, cur.Close(ctx))
	return values
}

func TestDataset_CountAndFilter(t *testing.T) {
	ds := fixture(t, 100)
	ctx := context.Background()

	conn, err := ds.Dial(ctx, store.Target{})
	require.NoError(t, err)
	defer conn.Close(ctx)

	tests := []struct {
		name   string
		filter interface{}
		want   int64
	}{
		{"nil", nil, 100},
		{"empty", bson.D{}, 100},
		{"equality", bson.M{"value": 7}, 1},
		{"string equality", bson.M{"name": "doc"}, 100},
		{"missing field", bson.M{"other": 1}, 0},
		{"gte", bson.D{{Key: "value", Value: bson.D{{Key: "$gte", Value: 90}}}}, 10},
		{"range", bson.M{"value": bson.M{"$gte": 10, "$lt": 20}}, 10},
		{"even", bson.M{"value": bson.M{"$mod": bson.A{2, 0}}}, 50},
		{"ne", bson.M{"value": bson.M{"$ne": 0}}, 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := conn.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	_, err = conn.Count(ctx, bson.M{"$where": "true"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestDataset_FindWindow(t *testing.T) {
	ds := fixture(t, 10)
	ctx := context.Background()
	conn, err := ds.Dial(ctx, store.Target{})
	require.NoError(t, err)

	cur, err := conn.Find(ctx, nil, 3, 4, store.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5, 6}, drain(t, cur))

	cur, err = conn.Find(ctx, nil, 8, 4, store.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{8, 9}, drain(t, cur))

	cur, err = conn.Find(ctx, nil, 40, 4, store.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, drain(t, cur))

	cur, err = conn.Find(ctx, nil, 0, 3, store.FindOptions{Sort: bson.D{{Key: "value", Value: -1}}})
	require.NoError(t, err)
	assert.Equal(t, []int{9, 8, 7}, drain(t, cur))

	_, err = conn.Find(ctx, nil, 0, 0, store.FindOptions{})
	assert.Error(t, err, "a zero window is rejected")

	stats := ds.Stats()
	assert.Equal(t, int64(4), stats.CursorsOpened)
	assert.Equal(t, int64(4), stats.CursorsClosed)
}

func TestDataset_Faults(t *testing.T) {
	ds := fixture(t, 10)
	ctx := context.Background()

	ds.FailDial(assert.AnError)
	_, err := ds.Dial(ctx, store.Target{})
	assert.True(t, errors.IsConnection(err))
	ds.FailDial(nil)

	conn, err := ds.Dial(ctx, store.Target{})
	require.NoError(t, err)

	ds.FailCount(assert.AnError)
	_, err = conn.Count(ctx, nil)
	assert.True(t, errors.IsConnection(err))
	ds.FailCount(nil)

	ds.FailCursorAfter(2, assert.AnError)
	cur, err := conn.Find(ctx, nil, 0, 10, store.FindOptions{})
	require.NoError(t, err)
	assert.True(t, cur.Next(ctx))
	assert.True(t, cur.Next(ctx))
	assert.False(t, cur.Next(ctx))
	assert.ErrorIs(t, cur.Err(), assert.AnError)
	require.NoError(t, cur.Close(ctx))

	require.NoError(t, conn.Close(ctx))
	_, err = conn.Count(ctx, nil)
	assert.True(t, errors.IsConnection(err), "closed connections refuse work")

	stats := ds.Stats()
	assert.Equal(t, int64(1), stats.Dials)
	assert.Equal(t, int64(1), stats.Disconnects)
}

func TestDataset_Mutation(t *testing.T) {
	ds := fixture(t, 10)
	ds.DeleteFirst(3)
	assert.Equal(t, 7, ds.Len())
	require.NoError(t, ds.Insert(bson.M{"_id": 100, "value": 100}))
	assert.Equal(t, 8, ds.Len())
}

func TestRegisteredDataset(t *testing.T) {
	ds := fixture(t, 5)
	Register("registry-test", ds)
	defer Unregister("registry-test")

	conn, err := registry.Dial(context.Background(), store.Target{URI: "memory://registry-test/db"})
	require.NoError(t, err)
	n, err := conn.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = registry.Dial(context.Background(), store.Target{URI: "memory://nope"})
	assert.True(t, errors.IsConnection(err))
}
