package logger

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey     contextKey = "logger"
	requestIDKey  contextKey = "request_id"
	tenantIDKey   contextKey = "tenant_id"
	campaignIDKey contextKey = "campaign_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRequestID stores the request ID for log correlation
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithTenantID stores the tenant for log correlation. Repositories never read
// it: tenant scoping is always passed explicitly.
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// WithCampaignID stores the campaign being processed
func WithCampaignID(ctx context.Context, campaignID uuid.UUID) context.Context {
	return context.WithValue(ctx, campaignIDKey, campaignID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func uuidFrom(ctx context.Context, key contextKey) (uuid.UUID, bool) {
	id, ok := ctx.Value(key).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// L returns the context logger enriched with trace_id, span_id, request_id,
// tenant_id and campaign_id when present.
//
// Usage: logger.L(ctx).Info("message", zap.String("key", "value"))
func L(ctx context.Context) *zap.Logger {
	return Enrich(ctx, FromContext(ctx))
}

// Enrich adds the correlation fields found in ctx to l
func Enrich(ctx context.Context, l *zap.Logger) *zap.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	var fields []zap.Field

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields,
			zap.String("trace_id", spanCtx.TraceID().String()),
			zap.String("span_id", spanCtx.SpanID().String()),
		)
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if id, ok := uuidFrom(ctx, tenantIDKey); ok {
		fields = append(fields, zap.String("tenant_id", id.String()))
	}
	if id, ok := uuidFrom(ctx, campaignIDKey); ok {
		fields = append(fields, zap.String("campaign_id", id.String()))
	}

	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
