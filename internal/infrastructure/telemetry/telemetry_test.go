package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestDispatchMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewDispatchMetrics(provider.Meter("test"))
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordSubmitted(ctx, "first_class", "6x9", 87)
	m.RecordSubmitted(ctx, "first_class", "6x9", 87)
	m.RecordFailed(ctx, "address_undeliverable")
	m.RecordCampaignFinished(ctx, "completed_with_errors")
	m.RecordStatusChange(ctx, "delivered")
	m.RecordVendorCall(ctx, "create", 300*time.Millisecond, nil)
	m.RecordVendorCall(ctx, "create", time.Second, errors.New("timeout"))

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, data[MetricMailPiecesSubmitted]))
	assert.Equal(t, int64(174), sumOf(t, data[MetricDispatchCostCents]))
	assert.Equal(t, int64(1), sumOf(t, data[MetricMailPiecesFailed]))
	assert.Equal(t, int64(1), sumOf(t, data[MetricCampaignsFinished]))
	assert.Equal(t, int64(1), sumOf(t, data[MetricReconcileChanges]))

	hist, ok := data[MetricVendorRequestDuration].(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2, "success and error outcomes are separate series")
}

func TestDispatchMetrics_NilIsNoop(t *testing.T) {
	var m *DispatchMetrics
	assert.NotPanics(t, func() {
		m.RecordSubmitted(context.Background(), "standard", "4x6", 50)
		m.RecordFailed(context.Background(), "timeout")
		m.RecordVendorCall(context.Background(), "get", time.Millisecond, nil)
	})
}

func TestNewProviders_Disabled(t *testing.T) {
	p, err := NewProviders(context.Background(), config.TelemetryConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NotNil(t, p.Meter("x"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestStartServiceSpan(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartServiceSpan(context.Background(), "dispatch", "run",
		WithAttribute(SpanAttrCampaignID, "c-1"),
		WithAttribute("recipients", 3),
	)
	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())
	SetAttributes(span, SpanAttrStatus, "completed", 42, "ignored")
	AddEvent(span, "claim_acquired", "ttl_seconds", int64(3600))
	RecordError(span, errors.New("vendor down"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, "dispatch.run", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)
	attrs := map[string]string{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "c-1", attrs[SpanAttrCampaignID])
	assert.Equal(t, "3", attrs["recipients"])
	assert.Equal(t, "completed", attrs[SpanAttrStatus])
	require.Len(t, s.Events(), 2, "recorded error adds an exception event")
}

type row struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestRegisterDBTracing(t *testing.T) {
	rec := withRecorder(t)
	db := openDB(t)
	require.NoError(t, db.AutoMigrate(&row{}))

	require.NoError(t, RegisterDBTracing(db, DBTracingConfig{Enabled: true, SlowQueryThresh: time.Nanosecond}, nil))

	require.NoError(t, db.WithContext(context.Background()).Create(&row{Name: "a"}).Error)
	var found row
	err := db.WithContext(context.Background()).First(&found, 999).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	ended := rec.Ended()
	require.NotEmpty(t, ended)
	for _, s := range ended {
		assert.NotEqual(t, codes.Error, s.Status().Code, "record not found is not a span error")
	}
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	assert.NoError(t, RegisterDBTracing(openDB(t), DBTracingConfig{}, nil))
}
