package campaign

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/application/validation"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/artwork"
)

// Proof renders both sides of the campaign for one recipient. Without a
// recipient id the first recipient is used, or sample data when there is none.
func (s *Service) Proof(ctx context.Context, tenantID, campaignID uuid.UUID, req ProofRequest) (*artwork.Proof, error) {
	if s.proofs == nil {
		return nil, ErrProofsUnavailable
	}
	c, err := s.load(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	vars, err := s.proofVariables(ctx, c, req.RecipientID)
	if err != nil {
		return nil, err
	}
	return s.proofs.Generate(ctx, c, vars)
}

// UploadURL issues a presigned URL for uploading one side's artwork. The
// returned storage key is what UpdateContent expects for uploaded artwork.
func (s *Service) UploadURL(ctx context.Context, tenantID, campaignID uuid.UUID, req UploadURLRequest) (*UploadURLResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if s.uploads == nil {
		return nil, ErrUploadsUnavailable
	}
	c, err := s.load(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if err := c.EnsureEditable(); err != nil {
		return nil, err
	}

	key := artwork.UploadKey(c, req.Side, req.Filename)
	url, expiresAt, err := s.uploads.GenerateUploadURL(ctx, key, req.ContentType, s.uploadExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to presign artwork upload: %w", err)
	}
	return &UploadURLResponse{URL: url, StorageKey: key, ExpiresAt: expiresAt}, nil
}

func (s *Service) proofVariables(ctx context.Context, c *campaign.Campaign, recipientID *uuid.UUID) (map[string]string, error) {
	if recipientID != nil {
		r, err := s.loadRecipient(ctx, c.TenantID, c.ID, *recipientID)
		if err != nil {
			return nil, err
		}
		return r.MergeVariables(), nil
	}
	first, err := s.recipients.FindByCampaign(ctx, c.TenantID, c.ID, shared.Filter{Page: 1, PageSize: 1})
	if err != nil {
		return nil, err
	}
	if len(first) > 0 {
		return first[0].MergeVariables(), nil
	}
	return sampleVariables(), nil
}

// sampleVariables personalize a proof when the campaign has no recipients yet
func sampleVariables() map[string]string {
	return map[string]string{
		"name":          "Jordan Sample",
		"first_name":    "Jordan",
		"address_line1": "185 Berry St",
		"address_line2": "Suite 6100",
		"address_city":  "San Francisco",
		"address_state": "CA",
		"address_zip":   "94107",
	}
}
