// Package export writes every partition of a source to its own
// newline-delimited JSON file, optionally compressed.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongosplit/internal/engine"
	"github.com/ajitpratap0/mongosplit/pkg/compression"
	"github.com/ajitpratap0/mongosplit/pkg/connector/core"
	"github.com/ajitpratap0/mongosplit/pkg/errors"
	"github.com/ajitpratap0/mongosplit/pkg/json"
)

// newWriter wraps the partition file in the configured compressor
var newWriter = compression.NewWriter

// Format selects how records are rendered
type Format string

const (
	// FormatExtJSON writes MongoDB relaxed extended JSON, preserving BSON types
	FormatExtJSON Format = "extjson"
	// FormatJSON writes plain JSON
	FormatJSON Format = "json"
)

// Options configure an export
type Options struct {
	Dir         string
	Prefix      string
	Format      Format
	Compression compression.Algorithm
	Level       compression.Level
}

// File describes one written partition file
type File struct {
	Partition int    `json:"partition"`
	Path      string `json:"path"`
	Records   int64  `json:"records"`
	Bytes     int64  `json:"bytes"`
}

// Summary is the result of an export, files in partition order
type Summary struct {
	Files   []File `json:"files"`
	Records int64  `json:"records"`
}

// Run exports src into opts.Dir using the engine's pool. Files of failed
// partitions are removed; files of successful ones are kept even when the
// export as a whole fails.
func Run(ctx context.Context, ec *engine.Context, src core.PartitionSource, opts Options, log *zap.Logger) (*Summary, error) {
	if opts.Dir == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "output directory is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "part"
	}
	if opts.Format == "" {
		opts.Format = FormatExtJSON
	}
	if opts.Format != FormatExtJSON && opts.Format != FormatJSON {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported format %q", opts.Format)
	}
	if opts.Level == 0 {
		opts.Level = compression.Default
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create output directory")
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	err := ec.ForEachPartition(ctx, src, func(_ context.Context, p core.Partition, it core.RecordIterator) error {
		file, err := writePartition(p, it, opts)
		if err != nil {
			return err
		}
		log.Debug("partition exported",
			zap.Int("partition", file.Partition),
			zap.String("path", file.Path),
			zap.Int64("records", file.Records))

		mu.Lock()
		summary.Files = append(summary.Files, *file)
		summary.Records += file.Records
		mu.Unlock()
		return nil
	})

	sort.Slice(summary.Files, func(i, j int) bool {
		return summary.Files[i].Partition < summary.Files[j].Partition
	})
	return &summary, err
}

// FileName returns the name of the file holding partition index
func FileName(opts Options, index int) string {
	return fmt.Sprintf("%s-%05d.ndjson%s", opts.Prefix, index, opts.Compression.Extension())
}

func writePartition(p core.Partition, it core.RecordIterator, opts Options) (_ *File, err error) {
	path := filepath.Join(opts.Dir, FileName(opts, p.ID()))
	tmp := path + ".tmp"

	f, err := os.Create(tmp) //nolint:gosec // G304: path is built from the output directory
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create partition file")
	}

	var cw io.WriteCloser
	defer func() {
		if err != nil {
			if cw != nil {
				_ = cw.Close()
			}
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	counter := &countingWriter{w: f}
	buffered := bufio.NewWriterSize(counter, 64*1024)
	cw, err = newWriter(buffered, opts.Compression, opts.Level)
	if err != nil {
		cw = nil
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create compressor")
	}

	write, err := encoder(cw, opts.Format)
	if err != nil {
		return nil, err
	}

	var records int64
	if err := core.Drain(it, func(rec core.Record) error {
		records++
		return write(rec)
	}); err != nil {
		return nil, err
	}

	closeErr := cw.Close()
	cw = nil
	if closeErr != nil {
		return nil, errors.Wrap(closeErr, errors.ErrorTypeInternal, "failed to finish compressed stream")
	}
	if err := buffered.Flush(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to flush partition file")
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to close partition file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to publish partition file")
	}

	return &File{Partition: p.ID(), Path: path, Records: records, Bytes: counter.n}, nil
}

// encoder returns a function writing one record as a line
func encoder(w io.Writer, format Format) (func(core.Record) error, error) {
	switch format {
	case FormatJSON:
		enc, err := json.NewStreamingEncoder(w, false)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to start JSON stream")
		}
		return func(rec core.Record) error {
			return enc.Encode(rec)
		}, nil
	case FormatExtJSON:
		var line []byte
		return func(rec core.Record) error {
			var err error
			line, err = bson.MarshalExtJSONAppend(line[:0], rec, false, false)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeQuery, "failed to encode record")
			}
			line = append(line, '\n')
			_, err = w.Write(line)
			return err
		}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported format %q", format)
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
