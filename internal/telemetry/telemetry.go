// Package telemetry records spans and metrics for database operations.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Skycoder42/firebox/rtdb"

var (
	attrDBSystem   = attribute.Key("db.system")
	attrOperation  = attribute.Key("db.operation")
	attrPath       = attribute.Key("rtdb.path")
	attrStatusCode = attribute.Key("http.status_code")
	attrError      = attribute.Key("rtdb.error")
	attrEventLabel = attribute.Key("rtdb.event")
)

// Config selects the providers. Nil providers fall back to the otel globals.
type Config struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Instruments bundles the tracer and metric instruments. A nil *Instruments
// is valid and records nothing.
type Instruments struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
	events   metric.Int64Counter
}

// RequestData is recorded once per finished request.
type RequestData struct {
	Operation  string
	StatusCode int
	Duration   time.Duration
	Error      error
}

// New builds Instruments from cfg.
func New(cfg Config) (*Instruments, error) {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	requests, err := meter.Int64Counter("rtdb.requests", metric.WithDescription("Completed database requests."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("rtdb.request.duration", metric.WithDescription("Database request latency."), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	events, err := meter.Int64Counter("rtdb.stream.events", metric.WithDescription("Server-sent events received on streams."))
	if err != nil {
		return nil, err
	}
	return &Instruments{
		tracer:   tp.Tracer(instrumentationName),
		requests: requests,
		duration: duration,
		events:   events,
	}, nil
}

// Start opens a span named "rtdb.<operation>".
func (i *Instruments) Start(ctx context.Context, operation, path string) (context.Context, trace.Span) {
	if i == nil || i.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return i.tracer.Start(ctx, "rtdb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attrDBSystem.String("firebase"),
			attrOperation.String(operation),
			attrPath.String(path),
		),
	)
}

// RecordRequest adds the request counter and latency sample.
func (i *Instruments) RecordRequest(ctx context.Context, data RequestData) {
	if i == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attrOperation.String(data.Operation),
		attrError.Bool(data.Error != nil),
	}
	if data.StatusCode > 0 {
		attrs = append(attrs, attrStatusCode.Int(data.StatusCode))
	}
	i.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	if data.Duration > 0 {
		i.duration.Record(ctx, float64(data.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

// RecordStreamEvent counts one inbound event by its label.
func (i *Instruments) RecordStreamEvent(ctx context.Context, label string) {
	if i == nil {
		return
	}
	i.events.Add(ctx, 1, metric.WithAttributes(attrEventLabel.String(label)))
}

// SetStatusCode annotates span with the HTTP status.
func SetStatusCode(span trace.Span, code int) {
	if span != nil && code > 0 {
		span.SetAttributes(attrStatusCode.Int(code))
	}
}

// EndSpan records err on span and ends it.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "ok")
	}
	span.End()
}
