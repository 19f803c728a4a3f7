package core

import (
	"iter"

	"github.com/ajitpratap0/mongosplit/pkg/errors"
)

// Records adapts it to a range-over-func sequence. The iterator is closed
// when the loop ends, including when the caller breaks out early. A stream
// failure is yielded once as the final element.
func Records(it RecordIterator) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		defer it.Close()

		for it.HasNext() {
			rec, err := it.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Drain calls fn for every remaining record and closes the iterator.
func Drain(it RecordIterator, fn func(Record) error) error {
	for rec, err := range Records(it) {
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// SliceIterator iterates over records held in memory.
type SliceIterator struct {
	records []Record
	pos     int
	closed  bool
}

// NewSliceIterator returns an iterator over records. A nil slice gives an
// empty, already exhausted iterator.
func NewSliceIterator(records []Record) *SliceIterator {
	return &SliceIterator{records: records}
}

func (s *SliceIterator) HasNext() bool {
	return !s.closed && s.pos < len(s.records)
}

func (s *SliceIterator) Next() (Record, error) {
	if !s.HasNext() {
		return nil, errors.New(errors.ErrorTypeExhausted, "no more records")
	}
	rec := s.records[s.pos]
	s.records[s.pos] = nil
	s.pos++
	return rec, nil
}

func (s *SliceIterator) Err() error { return nil }

func (s *SliceIterator) Close() error {
	s.closed = true
	return nil
}
