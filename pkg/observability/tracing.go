// Package observability provides OpenTelemetry tracing for partitioned reads.
// Spans are created from the global tracer provider, so they are no-ops until
// InitTracing installs one.
package observability

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/mongosplit"

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	SamplingRate   float64
	BatchTimeout   time.Duration
	PrettyPrint    bool
	// Writer receives exported spans; stdout when nil
	Writer io.Writer
}

// Tracer returns the package tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// SourceTracer starts spans for one named source
type SourceTracer struct {
	connectorType string
	connectorName string
	tracer        trace.Tracer
}

// NewSourceTracer creates a tracer for a source. A nil tracer uses Tracer().
func NewSourceTracer(connectorType, connectorName string, tracer trace.Tracer) *SourceTracer {
	if tracer == nil {
		tracer = Tracer()
	}
	return &SourceTracer{
		connectorType: connectorType,
		connectorName: connectorName,
		tracer:        tracer,
	}
}

// StartSpan starts a span named <type>.<operation> carrying the source
// attributes plus attrs.
func (st *SourceTracer) StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{
		attribute.String("connector.type", st.connectorType),
		attribute.String("connector.name", st.connectorName),
		attribute.String("connector.operation", operation),
	}
	return st.tracer.Start(ctx, st.connectorType+"."+operation,
		trace.WithAttributes(append(base, attrs...)...))
}

// EndSpan records err on span (if any) and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
