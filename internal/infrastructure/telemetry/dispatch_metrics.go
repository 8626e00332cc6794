package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names
const (
	MetricMailPiecesSubmitted   = "postcard_mail_pieces_submitted_total"
	MetricMailPiecesFailed      = "postcard_mail_pieces_failed_total"
	MetricDispatchCostCents     = "postcard_dispatch_cost_cents_total"
	MetricCampaignsFinished     = "postcard_campaigns_finished_total"
	MetricReconcileChanges      = "postcard_reconcile_status_changes_total"
	MetricVendorRequestDuration = "postcard_vendor_request_duration_seconds"
)

// DispatchMetrics holds the instruments recorded along the dispatch and
// reconcile paths. A nil *DispatchMetrics records nothing.
type DispatchMetrics struct {
	submitted       *Counter
	failed          *Counter
	costCents       *Counter
	finished        *Counter
	statusChanges   *Counter
	vendorDurations *Histogram
}

// NewDispatchMetrics creates the instruments on meter
func NewDispatchMetrics(meter metric.Meter) (*DispatchMetrics, error) {
	var (
		m   DispatchMetrics
		err error
	)
	if m.submitted, err = NewCounter(meter, MetricMailPiecesSubmitted, "Mail pieces accepted by the vendor", "{piece}"); err != nil {
		return nil, err
	}
	if m.failed, err = NewCounter(meter, MetricMailPiecesFailed, "Mail pieces rejected or not submitted", "{piece}"); err != nil {
		return nil, err
	}
	if m.costCents, err = NewCounter(meter, MetricDispatchCostCents, "Postage reported by the vendor", "{cent}"); err != nil {
		return nil, err
	}
	if m.finished, err = NewCounter(meter, MetricCampaignsFinished, "Campaigns reaching a terminal status through dispatch", "{campaign}"); err != nil {
		return nil, err
	}
	if m.statusChanges, err = NewCounter(meter, MetricReconcileChanges, "Recipient delivery status changes applied by the reconciler", "{change}"); err != nil {
		return nil, err
	}
	if m.vendorDurations, err = NewHistogram(meter, HistogramOpts{
		Name:        MetricVendorRequestDuration,
		Description: "Mail vendor API request latency",
		Unit:        "s",
		Boundaries:  VendorDurationBuckets,
	}); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordSubmitted counts one accepted mail piece and its cost
func (m *DispatchMetrics) RecordSubmitted(ctx context.Context, mailClass, mailSize string, costCents int64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrMailClass.String(mailClass), AttrMailSize.String(mailSize)}
	m.submitted.Inc(ctx, attrs...)
	if costCents > 0 {
		m.costCents.Add(ctx, costCents, attrs...)
	}
}

// RecordFailed counts one mail piece that was not accepted
func (m *DispatchMetrics) RecordFailed(ctx context.Context, cause string) {
	if m == nil {
		return
	}
	m.failed.Inc(ctx, AttrErrorCause.String(cause))
}

// RecordCampaignFinished counts a campaign reaching status
func (m *DispatchMetrics) RecordCampaignFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.finished.Inc(ctx, AttrFinalStatus.String(status))
}

// RecordStatusChange counts a reconciled recipient moving to status
func (m *DispatchMetrics) RecordStatusChange(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.statusChanges.Inc(ctx, AttrToStatus.String(status))
}

// RecordVendorCall records the latency of one vendor request
func (m *DispatchMetrics) RecordVendorCall(ctx context.Context, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.vendorDurations.RecordDuration(ctx, d, AttrVendorOp.String(operation), AttrOutcome.String(outcome))
}
