// Package mailvendor adapts the mail-fulfillment vendor's REST API to the
// fulfillment.Gateway port. Every call is written to the vendor API log with
// personal data redacted.
package mailvendor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/fulfillment"
	"github.com/postcard/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const vendorObjectTypePostcard = "postcard"

// ArtworkResolver resolves campaign artwork references to sendable content
type ArtworkResolver interface {
	Resolve(ctx context.Context, c *campaign.Campaign) (fulfillment.ResolvedArtwork, error)
}

// HTMLMerger renders HTML artwork with a recipient's merge variables
type HTMLMerger interface {
	Merge(html string, vars map[string]string) (string, error)
}

// Gateway implements fulfillment.Gateway on top of Client
type Gateway struct {
	client  *Client
	artwork ArtworkResolver
	merger  HTMLMerger
	logs    fulfillment.VendorAPILogRepository
	logger  *zap.Logger
}

// NewGateway creates a gateway. logs may be nil to disable the audit trail.
func NewGateway(client *Client, artwork ArtworkResolver, merger HTMLMerger, logs fulfillment.VendorAPILogRepository, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client:  client,
		artwork: artwork,
		merger:  merger,
		logs:    logs,
		logger:  logger,
	}
}

// ResolveArtwork delegates to the artwork resolver
func (g *Gateway) ResolveArtwork(ctx context.Context, c *campaign.Campaign) (fulfillment.ResolvedArtwork, error) {
	return g.artwork.Resolve(ctx, c)
}

// CreateMailPiece submits one postcard for a recipient
func (g *Gateway) CreateMailPiece(ctx context.Context, req fulfillment.CreateRequest) (*fulfillment.MailPiece, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "mailvendor", "create_postcard",
		telemetry.WithAttribute("campaign_id", req.Campaign.ID.String()),
		telemetry.WithAttribute("recipient_id", req.Recipient.ID.String()))
	defer span.End()

	body, err := g.buildRequest(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	pc, ex, err := g.client.createPostcard(ctx, body, req.IdempotencyKey)
	campaignID, recipientID := req.Campaign.ID, req.Recipient.ID
	g.audit(ctx, req.TenantID, &campaignID, &recipientID, ex, pc, err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttribute(span, "vendor_object_id", pc.ID)
	return toMailPiece(pc, ex), nil
}

// GetMailPiece fetches the vendor's current view of a postcard
func (g *Gateway) GetMailPiece(ctx context.Context, tenantID uuid.UUID, vendorObjectID string) (*fulfillment.MailPiece, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "mailvendor", "get_postcard",
		telemetry.WithAttribute("vendor_object_id", vendorObjectID))
	defer span.End()

	pc, ex, err := g.client.getPostcard(ctx, vendorObjectID)
	g.audit(ctx, tenantID, nil, nil, ex, pc, err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return toMailPiece(pc, ex), nil
}

func (g *Gateway) buildRequest(req fulfillment.CreateRequest) (*postcardRequest, error) {
	c, r := req.Campaign, req.Recipient
	vars := r.MergeVariables()

	front, err := g.side(req.Artwork.FrontURL, req.Artwork.FrontHTML, vars)
	if err != nil {
		return nil, fmt.Errorf("mailvendor: front artwork: %w", err)
	}
	back, err := g.side(req.Artwork.BackURL, req.Artwork.BackHTML, vars)
	if err != nil {
		return nil, fmt.Errorf("mailvendor: back artwork: %w", err)
	}

	body := &postcardRequest{
		Description:    truncate(c.Name, 255),
		To:             newVendorAddress(r.Name, r.Address),
		Front:          front,
		Back:           back,
		Size:           c.MailSize.String(),
		MailType:       c.MailClass.VendorMailType(),
		UseType:        g.client.config.UseType,
		MergeVariables: r.MergeFields,
		Metadata: map[string]string{
			"campaign_id":  c.ID.String(),
			"recipient_id": r.ID.String(),
			"tenant_id":    req.TenantID.String(),
		},
	}
	if !req.From.Address.IsEmpty() {
		from := newVendorAddress(req.From.Name, req.From.Address)
		body.From = &from
	}
	return body, nil
}

func (g *Gateway) side(url, html string, vars map[string]string) (string, error) {
	if url != "" {
		return url, nil
	}
	if html == "" {
		return "", fmt.Errorf("no artwork")
	}
	if g.merger == nil {
		return html, nil
	}
	return g.merger.Merge(html, vars)
}

// audit writes the vendor API log. A failed write is logged and never fails the call.
func (g *Gateway) audit(ctx context.Context, tenantID uuid.UUID, campaignID, recipientID *uuid.UUID, ex *exchange, pc *postcardResponse, callErr error) {
	if g.logs == nil || ex == nil {
		return
	}

	entry := fulfillment.NewVendorAPILog(tenantID, ex.Method, ex.Endpoint, ex.Started)
	entry.CampaignID = campaignID
	entry.RecipientID = recipientID
	entry.RequestBody = RedactBody(ex.RequestBody)
	entry.ResponseBody = RedactBody(ex.ResponseBody)
	entry.StatusCode = ex.StatusCode
	entry.Success = callErr == nil
	entry.VendorObjectType = vendorObjectTypePostcard
	if callErr != nil {
		entry.ErrorMessage = truncate(callErr.Error(), 1000)
	}
	if pc != nil {
		entry.VendorObjectID = pc.ID
		entry.CostCents = pc.priceCents()
	}

	if err := g.logs.Create(ctx, entry); err != nil {
		g.logger.Warn("Failed to write vendor API log",
			zap.String("endpoint", ex.Endpoint),
			zap.Error(err))
	}
}

func toMailPiece(pc *postcardResponse, ex *exchange) *fulfillment.MailPiece {
	return &fulfillment.MailPiece{
		ID:                   pc.ID,
		URL:                  pc.URL,
		Status:               pc.currentStatus(),
		ExpectedDeliveryDate: parseVendorDate(pc.ExpectedDeliveryDate),
		CreatedAt:            parseVendorDate(pc.DateCreated),
		PriceCents:           pc.priceCents(),
		Snapshot:             RedactBody(ex.ResponseBody),
	}
}

var _ fulfillment.Gateway = (*Gateway)(nil)
