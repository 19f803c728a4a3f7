// Package mongosplit reads a MongoDB collection in parallel by splitting the
// documents matching a filter into equally sized skip/limit windows.
//
// # Architecture
//
// A read has two phases:
//
//  1. Planning: the source counts the matching documents once and derives
//     one window per partition (pkg/partition). The plan never changes.
//  2. Computing: a host executes partitions independently. Each partition
//     opens its own connection and cursor and is consumed through a lazy
//     iterator that releases both on exhaustion, failure or Close.
//
// # Packages
//
//   - pkg/connector/core: the host contract (PartitionSource, RecordIterator)
//   - pkg/connector/sources/mongodb: the partitioned MongoDB source
//   - pkg/store: the count/find abstraction, with mongostore (driver) and
//     memstore (in-process) implementations
//   - internal/engine: a worker-pool host running partitions in parallel
//   - internal/export: per-partition NDJSON files
//   - cmd/mongosplit: the command line tool
//
// # Quick Start
//
//	cfg := config.NewSourceConfig("numbers")
//	cfg.URI = "mongodb://localhost:27017"
//	cfg.Database = "test"
//	cfg.Collection = "numbers"
//	cfg.Partitions = 4
//
//	src, err := mongodb.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ec, err := engine.New(engine.Config{Workers: 4}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ec.Close()
//
//	counts, err := engine.CountByKey(ctx, ec, src, func(r core.Record) (int64, error) {
//	    return int64(r["value"].(int32) % 2), nil
//	})
//
// # Consistency
//
// Windows are positional. Inserts or deletes between planning and computing
// shift documents between windows, so a document may be read twice or
// missed. Sort on a unique field and read a quiescent collection when
// exact coverage matters.
package mongosplit
