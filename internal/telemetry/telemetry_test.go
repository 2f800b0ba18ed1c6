package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInstrumentsRecordSpansAndMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))

	inst, err := New(Config{TracerProvider: tp, MeterProvider: mp})
	require.NoError(t, err)

	ctx, span := inst.Start(context.Background(), "get", "/users")
	SetStatusCode(span, 404)
	inst.RecordRequest(ctx, RequestData{Operation: "get", StatusCode: 404, Duration: 5 * time.Millisecond, Error: errors.New("nope")})
	inst.RecordStreamEvent(ctx, "put")
	inst.RecordStreamEvent(ctx, "put")
	EndSpan(span, errors.New("nope"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "rtdb.get", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	requests := findMetric(t, rm, "rtdb.requests")
	sum, ok := requests.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)

	events := findMetric(t, rm, "rtdb.stream.events")
	evSum, ok := events.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, evSum.DataPoints, 1)
	assert.Equal(t, int64(2), evSum.DataPoints[0].Value)

	_, ok = findMetric(t, rm, "rtdb.request.duration").Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestNilInstrumentsAreSafe(t *testing.T) {
	var inst *Instruments
	ctx, span := inst.Start(context.Background(), "put", "/")
	inst.RecordRequest(ctx, RequestData{Operation: "put"})
	inst.RecordStreamEvent(ctx, "patch")
	EndSpan(span, nil)
	EndSpan(nil, nil)
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %q not found", name)
	return metricdata.Metrics{}
}
