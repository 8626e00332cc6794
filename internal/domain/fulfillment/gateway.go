// Package fulfillment describes the mail-fulfillment vendor as seen by the
// dispatch and reconciliation code: the gateway port, mail pieces, the
// vendor status vocabulary and typed error causes.
package fulfillment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
)

// ResolvedArtwork is the printable content for one campaign, ready to send.
// Each side is either a URL or HTML content; HTML is merged per recipient.
type ResolvedArtwork struct {
	FrontURL  string
	FrontHTML string
	BackURL   string
	BackHTML  string
}

// ReturnAddress is the "from" block printed on each piece
type ReturnAddress struct {
	Name    string
	Address valueobject.PostalAddress
}

// MailPiece is the vendor's view of a created postcard
type MailPiece struct {
	ID                   string
	URL                  string
	Status               string
	ExpectedDeliveryDate *time.Time
	CreatedAt            *time.Time
	PriceCents           int64
	// Snapshot is the redacted response body kept for audit
	Snapshot string
}

// CreateRequest is everything needed to create one mail piece
type CreateRequest struct {
	TenantID       uuid.UUID
	Campaign       *campaign.Campaign
	Recipient      *campaign.Recipient
	From           ReturnAddress
	Artwork        ResolvedArtwork
	IdempotencyKey string
}

// Gateway wraps every outbound call to the mail-fulfillment vendor
type Gateway interface {
	// ResolveArtwork turns the campaign's artwork references into sendable
	// content. Failing here is a setup error for the whole batch.
	ResolveArtwork(ctx context.Context, c *campaign.Campaign) (ResolvedArtwork, error)

	// CreateMailPiece submits one postcard
	CreateMailPiece(ctx context.Context, req CreateRequest) (*MailPiece, error)

	// GetMailPiece fetches the current vendor-side state of a postcard
	GetMailPiece(ctx context.Context, tenantID uuid.UUID, vendorObjectID string) (*MailPiece, error)
}

// MapVendorStatus translates the vendor's delivery vocabulary to a recipient
// status. ok is false for unrecognized values, which leave the recipient unchanged.
func MapVendorStatus(vendorStatus string) (status campaign.RecipientStatus, ok bool) {
	switch strings.ToLower(strings.TrimSpace(vendorStatus)) {
	case "in_transit", "in transit", "in local area", "processed for delivery":
		return campaign.RecipientStatusInTransit, true
	case "delivered", "mailed":
		return campaign.RecipientStatusDelivered, true
	case "returned_to_sender", "returned to sender", "returned":
		return campaign.RecipientStatusReturned, true
	case "failed":
		return campaign.RecipientStatusFailed, true
	}
	return "", false
}
