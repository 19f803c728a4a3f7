// Package config provides the configuration surface for mongosplit sources.
// A SourceConfig carries everything a partitioned MongoDB source needs: where
// to connect, what to read, how many partitions to split the result set into,
// and the ambient timeouts and observability switches.
//
// The configuration is organized into logical sections:
//   - Connection: URI, database, collection
//   - Query: filter, sort and projection as MongoDB extended JSON
//   - Partitioning: partition count and cursor batch size
//   - Timeouts: connection, count and per-partition request timeouts
//   - Observability: logging, metrics and tracing
//
// Example usage:
//
//	cfg := config.NewSourceConfig("orders")
//	cfg.URI = "mongodb://localhost:27017"
//	cfg.Database = "shop"
//	cfg.Collection = "orders"
//	cfg.Filter = `{"status": "shipped"}`
//	cfg.Partitions = 8
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ajitpratap0/mongosplit/pkg/errors"
)

// SourceConfig is the configuration of a partitioned document-store source.
type SourceConfig struct {
	// Name identifies the source instance in logs and metrics
	Name string `yaml:"name" json:"name" mapstructure:"name"`

	// URI is the MongoDB connection string
	URI string `yaml:"uri" json:"uri" mapstructure:"uri"`
	// Database to read from
	Database string `yaml:"database" json:"database" mapstructure:"database"`
	// Collection to read from
	Collection string `yaml:"collection" json:"collection" mapstructure:"collection"`

	// Filter is a MongoDB extended JSON document; empty matches everything
	Filter string `yaml:"filter" json:"filter" mapstructure:"filter"`
	// Sort is an optional extended JSON sort document. Without it windows are
	// taken over the store's natural order.
	Sort string `yaml:"sort" json:"sort" mapstructure:"sort"`
	// Projection is an optional extended JSON projection document
	Projection string `yaml:"projection" json:"projection" mapstructure:"projection"`

	// Partitions is the number of windows to split the result set into
	Partitions int `yaml:"partitions" json:"partitions" mapstructure:"partitions"`
	// BatchSize is the cursor round-trip batch size hint (0 = driver default)
	BatchSize int32 `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size"`

	Timeouts      TimeoutConfig       `yaml:"timeouts" json:"timeouts" mapstructure:"timeouts"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// TimeoutConfig contains timeout settings. Zero means no timeout is layered
// on top of the caller's context.
type TimeoutConfig struct {
	// Connection bounds dialing and pinging the store
	Connection time.Duration `yaml:"connection" json:"connection" mapstructure:"connection"`
	// Count bounds the planning count query
	Count time.Duration `yaml:"count" json:"count" mapstructure:"count"`
	// Request bounds each server round-trip of a cursor
	Request time.Duration `yaml:"request" json:"request" mapstructure:"request"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// EnableMetrics activates Prometheus collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	// MetricsAddr is the listen address of the metrics endpoint
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" mapstructure:"metrics_addr"`
	// EnableTracing activates OpenTelemetry spans
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
}

// NewSourceConfig creates a SourceConfig with sensible defaults.
func NewSourceConfig(name string) *SourceConfig {
	return &SourceConfig{
		Name:       name,
		Partitions: 1,
		BatchSize:  0,
		Timeouts: TimeoutConfig{
			Connection: 10 * time.Second,
			Count:      time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			MetricsAddr: ":9090",
		},
	}
}

// Validate checks required fields and value ranges. It never touches the
// network, so a bad partition count is reported before any connection attempt.
func (c *SourceConfig) Validate() error {
	if c.Partitions < 1 {
		return errors.New(errors.ErrorTypeConfig, "partitions must be at least 1").
			WithDetail("partitions", c.Partitions)
	}
	if c.URI == "" {
		return errors.New(errors.ErrorTypeConfig, "uri is required")
	}
	if c.Database == "" {
		return errors.New(errors.ErrorTypeConfig, "database is required")
	}
	if c.Collection == "" {
		return errors.New(errors.ErrorTypeConfig, "collection is required")
	}
	if c.BatchSize < 0 {
		return errors.New(errors.ErrorTypeConfig, "batch_size cannot be negative")
	}
	if _, err := c.ParseFilter(); err != nil {
		return err
	}
	if _, err := c.ParseSort(); err != nil {
		return err
	}
	if _, err := c.ParseProjection(); err != nil {
		return err
	}
	return nil
}

// ParseFilter decodes Filter. An empty filter matches every document.
func (c *SourceConfig) ParseFilter() (bson.D, error) {
	d, err := parseDocument("filter", c.Filter)
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = bson.D{}
	}
	return d, nil
}

// ParseSort decodes Sort; nil when unset.
func (c *SourceConfig) ParseSort() (bson.D, error) {
	return parseDocument("sort", c.Sort)
}

// ParseProjection decodes Projection; nil when unset.
func (c *SourceConfig) ParseProjection() (bson.D, error) {
	return parseDocument("projection", c.Projection)
}

func parseDocument(field, raw string) (bson.D, error) {
	if raw == "" {
		return nil, nil
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON([]byte(raw), false, &d); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid "+field+" document").
			WithDetail(field, raw)
	}
	return d, nil
}
