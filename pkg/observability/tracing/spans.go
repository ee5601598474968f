// Package tracing provides OpenTelemetry spans around repository operations.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used for repository spans.
const TracerName = "github.com/nimburion/catalog/repository"

// SpanOperation represents a traced repository operation.
type SpanOperation string

const (
	SpanOperationGet     SpanOperation = "db.get"
	SpanOperationQuery   SpanOperation = "db.query"
	SpanOperationCount   SpanOperation = "db.count"
	SpanOperationSaveAll SpanOperation = "db.save_all"
)

// StartDatabaseSpan starts a client span named "DB <operation> <collection>".
func StartDatabaseSpan(ctx context.Context, operation SpanOperation, opts ...DatabaseSpanOption) (context.Context, trace.Span) {
	spanOpts := &databaseSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("db.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("DB %s", operation)
	if spanOpts.collection != "" {
		spanName = fmt.Sprintf("DB %s %s", operation, spanOpts.collection)
	}

	ctx, span := otel.Tracer(TracerName).Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// DatabaseSpanOption configures a database span.
type DatabaseSpanOption func(*databaseSpanOptions)

type databaseSpanOptions struct {
	collection string
	attributes []attribute.KeyValue
}

// WithCollection sets the table or collection name.
func WithCollection(name string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.collection = name
		opts.attributes = append(opts.attributes, attribute.String("db.collection.name", name))
	}
}

// WithDBSystem sets the database system (e.g. "postgresql", "mongodb").
func WithDBSystem(system string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.system", system))
	}
}

// WithDBStatement sets the query statement.
func WithDBStatement(statement string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.statement", statement))
	}
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
