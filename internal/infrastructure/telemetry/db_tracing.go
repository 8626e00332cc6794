package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultSlowQueryThreshold marks queries slower than this on their span
const DefaultSlowQueryThreshold = 200 * time.Millisecond

// DBTracingConfig configures GORM tracing
type DBTracingConfig struct {
	Enabled         bool
	SlowQueryThresh time.Duration
	// IncludeVariables puts bound query parameters on spans. Recipient
	// addresses are personal data, so this is for local debugging only.
	IncludeVariables bool
}

type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"

// RegisterDBTracing installs otelgorm plus a callback that flags slow queries
// and records errors other than gorm.ErrRecordNotFound
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled")
		return nil
	}
	thresh := cfg.SlowQueryThresh
	if thresh <= 0 {
		thresh = DefaultSlowQueryThreshold
	}

	opts := []otelgorm.Option{otelgorm.WithDBName("postgresql")}
	if !cfg.IncludeVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartTimeKey, time.Now())
		}
	}
	after := func(tx *gorm.DB) { annotateSpan(tx, thresh) }

	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("postcard:before_create", before); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("postcard:after_create", after); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("postcard:before_query", before); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("postcard:after_query", after); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("postcard:before_update", before); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("postcard:after_update", after); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("postcard:before_delete", before); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("postcard:after_delete", after); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("postcard:before_raw", before); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("postcard:after_raw", after); err != nil {
		return err
	}

	logger.Info("Database tracing enabled", zap.Duration("slow_query_threshold", thresh))
	return nil
}

func annotateSpan(tx *gorm.DB, thresh time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if tx.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))
	}
	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, tx.Error.Error())
		span.RecordError(tx.Error)
	}
	if started, ok := ctx.Value(queryStartTimeKey).(time.Time); ok {
		if elapsed := time.Since(started); elapsed > thresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
