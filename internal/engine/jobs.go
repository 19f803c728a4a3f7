package engine

import (
	"context"
	"sync"

	"github.com/ajitpratap0/mongosplit/pkg/connector/core"
)

// CountByKey maps every record of src to a key and counts records per key.
// Each partition counts locally; the partial counts are merged once all
// partitions have finished.
func CountByKey[K comparable](ctx context.Context, ec *Context, src core.PartitionSource, key func(core.Record) (K, error)) (map[K]int64, error) {
	var (
		mu     sync.Mutex
		totals = make(map[K]int64)
	)

	err := ec.ForEachPartition(ctx, src, func(ctx context.Context, _ core.Partition, it core.RecordIterator) error {
		local := make(map[K]int64)
		if err := core.Drain(it, func(rec core.Record) error {
			k, err := key(rec)
			if err != nil {
				return err
			}
			local[k]++
			return nil
		}); err != nil {
			return err
		}

		mu.Lock()
		for k, n := range local {
			totals[k] += n
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

// Collect reads every record of src into memory, in partition order. It is
// meant for tests and small collections.
func (c *Context) Collect(ctx context.Context, src core.PartitionSource) ([]core.Record, error) {
	parts := src.Partitions()
	chunks := make([][]core.Record, len(parts))
	index := make(map[int]int, len(parts))
	for i, p := range parts {
		index[p.ID()] = i
	}

	err := c.ForEachPartition(ctx, src, func(_ context.Context, p core.Partition, it core.RecordIterator) error {
		var chunk []core.Record
		if err := core.Drain(it, func(rec core.Record) error {
			chunk = append(chunk, rec)
			return nil
		}); err != nil {
			return err
		}
		chunks[index[p.ID()]] = chunk
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []core.Record
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	return out, nil
}

// Count returns the number of records src yields
func (c *Context) Count(ctx context.Context, src core.PartitionSource) (int64, error) {
	counts, err := CountByKey(ctx, c, src, func(core.Record) (struct{}, error) {
		return struct{}{}, nil
	})
	if err != nil {
		return 0, err
	}
	return counts[struct{}{}], nil
}
