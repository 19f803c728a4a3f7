// Package partition splits a query result set into disjoint, contiguous
// skip/limit windows.
//
// The split is structural: given the number of matching documents and the
// desired partition count, every window has the same size,
// ceil(total/partitions), and window i starts at i*size. The last windows
// may hold fewer documents than the window size, or none at all, when the
// total does not divide evenly or when there are more partitions than
// documents. Nothing about data distribution or skew is taken into account.
package partition

import (
	"fmt"

	"github.com/ajitpratap0/mongosplit/pkg/errors"
)

// Descriptor is the immutable retrieval window of one partition.
type Descriptor struct {
	// Index is the position of the partition in the plan, starting at 0
	Index int `json:"index"`
	// Offset is the number of matching documents skipped before the window
	Offset int64 `json:"offset"`
	// WindowSize is the maximum number of documents the window returns
	WindowSize int64 `json:"window_size"`
}

// ID returns the partition index. Hosts key partitions by this value.
func (d Descriptor) ID() int {
	return d.Index
}

// Equal reports whether both descriptors describe the same window.
// All fields take part in the comparison, so descriptors coming from two
// different plans with a coinciding index are not equal.
func (d Descriptor) Equal(other Descriptor) bool {
	return d.Index == other.Index &&
		d.Offset == other.Offset &&
		d.WindowSize == other.WindowSize
}

// Empty reports whether the window can never return a document.
func (d Descriptor) Empty() bool {
	return d.WindowSize == 0
}

// End returns the exclusive upper bound of the window.
func (d Descriptor) End() int64 {
	return d.Offset + d.WindowSize
}

func (d Descriptor) String() string {
	return fmt.Sprintf("Partition[index=%d, offset=%d, window=%d]", d.Index, d.Offset, d.WindowSize)
}

// WindowSize returns ceil(total/partitions), or 0 when total is 0.
func WindowSize(total, partitions int64) int64 {
	if total <= 0 || partitions <= 0 {
		return 0
	}
	return (total + partitions - 1) / partitions
}

// Plan returns exactly partitions descriptors covering [0, total).
func Plan(total int64, partitions int) ([]Descriptor, error) {
	if partitions < 1 {
		return nil, errors.New(errors.ErrorTypeConfig, "partitions must be at least 1").
			WithDetail("partitions", partitions)
	}
	if total < 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "total count cannot be negative").
			WithDetail("total", total)
	}

	size := WindowSize(total, int64(partitions))
	plan := make([]Descriptor, partitions)
	for i := range plan {
		plan[i] = Descriptor{
			Index:      i,
			Offset:     int64(i) * size,
			WindowSize: size,
		}
	}
	return plan, nil
}
