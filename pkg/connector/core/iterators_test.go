package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mongosplit/pkg/errors"
)

func numbered(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{"_id": i, "value": i}
	}
	return out
}

func TestSliceIterator(t *testing.T) {
	it := NewSliceIterator(numbered(2))

	assert.True(t, it.HasNext())
	assert.True(t, it.HasNext(), "peek is idempotent")

	rec, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, rec["value"])

	rec, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, rec["value"])

	assert.False(t, it.HasNext())
	assert.False(t, it.HasNext())

	_, err = it.Next()
	assert.True(t, errors.IsExhausted(err))
	assert.NoError(t, it.Err())
	assert.NoError(t, it.Close())
}

func TestSliceIterator_Empty(t *testing.T) {
	it := NewSliceIterator(nil)
	assert.False(t, it.HasNext())
	_, err := it.Next()
	assert.True(t, errors.IsExhausted(err))
}

type closeCounter struct {
	*SliceIterator
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return c.SliceIterator.Close()
}

func TestRecords_EarlyBreakCloses(t *testing.T) {
	it := &closeCounter{SliceIterator: NewSliceIterator(numbered(10))}

	seen := 0
	for _, err := range Records(it) {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}

	assert.Equal(t, 3, seen)
	assert.Equal(t, 1, it.closes)
}

type failingIterator struct {
	SliceIterator
	err error
}

func (f *failingIterator) Err() error { return f.err }

func TestRecords_YieldsStreamError(t *testing.T) {
	streamErr := errors.New(errors.ErrorTypeQuery, "cursor killed")
	it := &failingIterator{SliceIterator: *NewSliceIterator(numbered(2)), err: streamErr}

	var got []Record
	var last error
	for rec, err := range Records(it) {
		if err != nil {
			last = err
			continue
		}
		got = append(got, rec)
	}

	assert.Len(t, got, 2, "records already yielded are kept")
	assert.ErrorIs(t, last, streamErr)
}

func TestDrain(t *testing.T) {
	sum := 0
	err := Drain(NewSliceIterator(numbered(5)), func(r Record) error {
		sum += r["value"].(int)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, sum)

	stop := errors.New(errors.ErrorTypeInternal, "stop")
	err = Drain(NewSliceIterator(numbered(5)), func(Record) error { return stop })
	assert.ErrorIs(t, err, stop)
}
