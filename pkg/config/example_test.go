package config_test

import (
	"fmt"

	"github.com/ajitpratap0/mongosplit/pkg/config"
	"github.com/ajitpratap0/mongosplit/pkg/errors"
)

// ExampleNewSourceConfig demonstrates creating a source configuration
// with default values.
func ExampleNewSourceConfig() {
	cfg := config.NewSourceConfig("orders")

	fmt.Printf("Partitions: %d\n", cfg.Partitions)
	fmt.Printf("Connection Timeout: %s\n", cfg.Timeouts.Connection)
	fmt.Printf("Count Timeout: %s\n", cfg.Timeouts.Count)

	// Output:
	// Partitions: 1
	// Connection Timeout: 10s
	// Count Timeout: 1m0s
}

// ExampleSourceConfig_Validate shows that an invalid partition count is
// rejected before anything is dialed.
func ExampleSourceConfig_Validate() {
	cfg := config.NewSourceConfig("orders")
	cfg.URI = "mongodb://localhost:27017"
	cfg.Database = "shop"
	cfg.Collection = "orders"
	cfg.Partitions = 0

	err := cfg.Validate()
	fmt.Println(errors.IsConfig(err))

	// Output:
	// true
}
