package main

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongosplit/internal/engine"
	"github.com/ajitpratap0/mongosplit/internal/export"
	"github.com/ajitpratap0/mongosplit/pkg/compression"
	"github.com/ajitpratap0/mongosplit/pkg/connector/core"
	"github.com/ajitpratap0/mongosplit/pkg/json"
	"github.com/ajitpratap0/mongosplit/pkg/logger"
	"github.com/ajitpratap0/mongosplit/pkg/partition"
)

// PlanOutput is what the plan command prints
type PlanOutput struct {
	Source     string                 `json:"source"`
	Database   string                 `json:"database"`
	Collection string                 `json:"collection"`
	Total      int64                  `json:"total"`
	WindowSize int64                  `json:"window_size"`
	Partitions []partition.Descriptor `json:"partitions"`
}

func newPlanCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Count the matching documents and print the partition plan",
		Long: `Count the documents matching the configured filter and print the
partition windows as JSON. No documents are read.

Example:
  mongosplit plan --config orders.yaml --partitions 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(flags, false)
			if err != nil {
				return err
			}
			defer s.Close()

			return printJSON(PlanOutput{
				Source:     s.cfg.Name,
				Database:   s.cfg.Database,
				Collection: s.cfg.Collection,
				Total:      s.source.TotalCount(),
				WindowSize: s.source.WindowSize(),
				Partitions: s.source.Descriptors(),
			})
		},
	}
}

func newExportCmd(flags *GlobalFlags) *cobra.Command {
	var outDir, prefix, algorithm, format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every partition to its own NDJSON file",
		Long: `Read all partitions in parallel and write each one to
<out>/<prefix>-<index>.ndjson[.ext], optionally compressed.

Example:
  mongosplit export --config orders.yaml --out ./dump --compression zstd`,
		RunE: func(cmd *cobra.Command, args []string) error {
			algo, err := compression.ParseAlgorithm(algorithm)
			if err != nil {
				return err
			}

			s, err := open(flags, true)
			if err != nil {
				return err
			}
			defer s.Close()

			summary, err := export.Run(s.ctx, s.engine, s.source, export.Options{
				Dir:         outDir,
				Prefix:      prefix,
				Format:      export.Format(format),
				Compression: algo,
			}, s.log)
			if err != nil {
				return err
			}

			logger.WithContext(s.ctx).Info("export completed",
				zap.Int("files", len(summary.Files)),
				zap.Int64("records", summary.Records))
			return printJSON(summary)
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (required)")
	cmd.Flags().StringVar(&prefix, "prefix", "part", "File name prefix")
	cmd.Flags().StringVar(&algorithm, "compression", "none", "Compression (none, gzip, zstd, snappy, s2, lz4)")
	cmd.Flags().StringVar(&format, "format", string(export.FormatExtJSON), "Record format (extjson, json)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func newCountByCmd(flags *GlobalFlags) *cobra.Command {
	var field string
	var mod int64

	cmd := &cobra.Command{
		Use:   "count-by",
		Short: "Count records per value of a field",
		Long: `Read all partitions in parallel and count records per key, where the
key is the value of --field, or the value modulo --mod when --mod is set.

Example (even/odd split of the "value" field):
  mongosplit count-by --config numbers.yaml --field value --mod 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mod < 0 {
				return fmt.Errorf("--mod cannot be negative")
			}

			s, err := open(flags, true)
			if err != nil {
				return err
			}
			defer s.Close()

			counts, err := engine.CountByKey(s.ctx, s.engine, s.source, keyFunc(field, mod))
			if err != nil {
				return err
			}

			logger.WithContext(s.ctx).Info("count completed",
				zap.String("field", field),
				zap.Int("keys", len(counts)))
			return printJSON(counts)
		},
	}

	cmd.Flags().StringVarP(&field, "field", "f", "", "Field to group by; dotted paths reach into sub-documents (required)")
	cmd.Flags().Int64Var(&mod, "mod", 0, "Group by the field value modulo this number")
	_ = cmd.MarkFlagRequired("field")

	return cmd
}

// keyFunc returns the grouping key of a record
func keyFunc(field string, mod int64) func(core.Record) (string, error) {
	path := strings.Split(field, ".")
	return func(rec core.Record) (string, error) {
		v, ok := lookup(rec, path)
		if !ok {
			return "<missing>", nil
		}
		if mod == 0 {
			return fmt.Sprint(v), nil
		}
		n, ok := toInt64(v)
		if !ok {
			return "", fmt.Errorf("field %s is %T, not an integer", field, v)
		}
		return fmt.Sprint(n % mod), nil
	}
}

func lookup(rec core.Record, path []string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(rec)
	for _, key := range path {
		switch m := cur.(type) {
		case map[string]interface{}:
			v, ok := m[key]
			if !ok {
				return nil, false
			}
			cur = v
		case core.Record:
			v, ok := m[key]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
