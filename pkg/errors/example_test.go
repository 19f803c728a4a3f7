// Package errors provides examples of structured error handling in mongosplit.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/mongosplit/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	err := errors.New(errors.ErrorTypeConnection, "failed to connect to document store")

	err = err.WithDetail("uri", "mongodb://localhost:27017").
		WithDetail("database", "test")

	fmt.Println(err.Error())

	// Output:
	// connection: failed to connect to document store
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeQuery, "cursor failed mid-stream").
		WithDetail("partition", 3)

	if errors.IsType(err, errors.ErrorTypeQuery) {
		fmt.Println("This is a query error")
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("Original error was unexpected EOF")
	}

	// Output:
	// This is a query error
	// Original error was unexpected EOF
}

// ExampleIsRetryable demonstrates which failures a host engine may retry.
func ExampleIsRetryable() {
	connErr := errors.New(errors.ErrorTypeConnection, "server selection timeout")
	cfgErr := errors.New(errors.ErrorTypeConfig, "partitions must be at least 1")
	exhausted := errors.New(errors.ErrorTypeExhausted, "no more records")

	fmt.Println(errors.IsRetryable(connErr))
	fmt.Println(errors.IsRetryable(cfgErr))
	fmt.Println(errors.IsRetryable(exhausted))

	// Output:
	// true
	// false
	// false
}
