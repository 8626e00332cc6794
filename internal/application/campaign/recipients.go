package campaign

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/application/validation"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared"
	csvimport "github.com/postcard/backend/internal/infrastructure/import"
	"github.com/postcard/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

const maxImportErrors = 100

// importRow is one recipient to import and the line it came from
type importRow struct {
	line int
	req  RecipientRequest
}

// AddRecipient adds one recipient to a draft campaign. Suppression is
// evaluated once, here.
func (s *Service) AddRecipient(ctx context.Context, tenantID, campaignID uuid.UUID, req RecipientRequest) (*RecipientResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if err := c.EnsureEditable(); err != nil {
		return nil, err
	}
	policy, err := s.evaluator.PolicyFor(ctx, c)
	if err != nil {
		return nil, err
	}

	r, err := buildRecipient(c, req)
	if err != nil {
		return nil, err
	}
	if err := s.evaluator.Apply(ctx, policy, r); err != nil {
		return nil, err
	}
	if err := s.recipients.Save(ctx, r); err != nil {
		return nil, err
	}
	if err := s.refresh(ctx, c); err != nil {
		return nil, err
	}

	resp := ToRecipientResponse(r)
	return &resp, nil
}

// ImportRecipients adds recipients in bulk. Invalid rows are reported and
// skipped; valid rows are stored together.
func (s *Service) ImportRecipients(ctx context.Context, tenantID, campaignID uuid.UUID, req ImportRecipientsRequest) (*ImportResult, error) {
	if len(req.Recipients) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "At least one recipient is required")
	}
	if len(req.Recipients) > s.importLimit {
		return nil, shared.NewDomainError("INVALID_INPUT",
			fmt.Sprintf("A single import is limited to %d recipients", s.importLimit))
	}
	rows := make([]importRow, len(req.Recipients))
	for i, r := range req.Recipients {
		rows[i] = importRow{line: i + 1, req: r}
	}
	return s.importRows(ctx, tenantID, campaignID, rows, csvimport.NewErrorCollection(maxImportErrors))
}

// ImportCSV adds recipients from a CSV file with a header row. Row numbers
// in the result refer to file lines.
func (s *Service) ImportCSV(ctx context.Context, tenantID, campaignID uuid.UUID, file io.Reader) (*ImportResult, error) {
	c, err := s.load(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if err := c.EnsureEditable(); err != nil {
		return nil, err
	}

	records, err := csvimport.ReadRecipients(file, s.importLimit)
	if err != nil {
		if errors.Is(err, csvimport.ErrTooManyRows) {
			return nil, shared.NewDomainError("INVALID_FILE",
				fmt.Sprintf("CSV file has more than %d rows", s.importLimit))
		}
		return nil, shared.NewDomainError("INVALID_FILE", err.Error())
	}
	if len(records) == 0 {
		return nil, shared.NewDomainError("INVALID_FILE", "CSV file has no recipient rows")
	}

	errs := csvimport.NewErrorCollection(maxImportErrors)
	rows := make([]importRow, 0, len(records))
	for _, rec := range records {
		req := RecipientRequest{
			Name: rec.Name,
			Address: AddressRequest{
				Line1:   rec.Line1,
				Line2:   rec.Line2,
				City:    rec.City,
				State:   rec.State,
				Zip:     rec.Zip,
				Country: rec.Country,
			},
			Email:       rec.Email,
			Phone:       rec.Phone,
			MergeFields: rec.MergeFields,
		}
		if rec.ProfileID != "" {
			id, err := uuid.Parse(rec.ProfileID)
			if err != nil {
				errs.AddFormatError(rec.Line, "profile_id", "profile_id must be a UUID", rec.ProfileID)
				continue
			}
			req.ProfileID = &id
		}
		rows = append(rows, importRow{line: rec.Line, req: req})
	}
	return s.importRows(ctx, tenantID, campaignID, rows, errs)
}

func (s *Service) importRows(ctx context.Context, tenantID, campaignID uuid.UUID, rows []importRow, errs *csvimport.ErrorCollection) (*ImportResult, error) {
	c, err := s.load(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if err := c.EnsureEditable(); err != nil {
		return nil, err
	}
	policy, err := s.evaluator.PolicyFor(ctx, c)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	batch := make([]*campaign.Recipient, 0, len(rows))
	for _, row := range rows {
		if err := validation.Struct(row.req); err != nil {
			errs.Add(rowError(row.line, err))
			continue
		}
		r, err := buildRecipient(c, row.req)
		if err != nil {
			var de *shared.DomainError
			if !errors.As(err, &de) {
				return nil, err
			}
			errs.Add(rowError(row.line, de))
			continue
		}
		if err := s.evaluator.Apply(ctx, policy, r); err != nil {
			return nil, err
		}
		if r.Suppressed {
			result.Suppressed++
		}
		batch = append(batch, r)
	}

	if len(batch) > 0 {
		if err := s.recipients.SaveBatch(ctx, batch); err != nil {
			return nil, err
		}
		if err := s.refresh(ctx, c); err != nil {
			return nil, err
		}
	}

	result.Imported = len(batch)
	result.Rejected = errs.TotalCount()
	result.Errors = errs.Errors()
	result.Truncated = errs.IsTruncated()

	logger.Enrich(ctx, s.logger).Info("Recipients imported",
		zap.String("campaign_id", c.ID.String()),
		zap.Int("imported", result.Imported),
		zap.Int("suppressed", result.Suppressed),
		zap.Int("rejected", result.Rejected))
	return result, nil
}

// ListRecipients retrieves a paginated list of a campaign's recipients in
// creation order
func (s *Service) ListRecipients(ctx context.Context, tenantID, campaignID uuid.UUID, filter RecipientListFilter) ([]RecipientResponse, int64, error) {
	if _, err := s.load(ctx, tenantID, campaignID); err != nil {
		return nil, 0, err
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}

	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Search:   filter.Search,
		Filters:  make(map[string]interface{}),
	}
	if filter.Status != "" {
		domainFilter.Filters["status"] = filter.Status
	}
	if filter.Suppressed != nil {
		domainFilter.Filters["suppressed"] = *filter.Suppressed
	}

	recipients, err := s.recipients.FindByCampaign(ctx, tenantID, campaignID, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.recipients.CountByCampaign(ctx, tenantID, campaignID, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	items := make([]RecipientResponse, len(recipients))
	for i := range recipients {
		items[i] = ToRecipientResponse(&recipients[i])
	}
	return items, total, nil
}

// GetRecipient retrieves one recipient of a campaign
func (s *Service) GetRecipient(ctx context.Context, tenantID, campaignID, recipientID uuid.UUID) (*RecipientResponse, error) {
	r, err := s.loadRecipient(ctx, tenantID, campaignID, recipientID)
	if err != nil {
		return nil, err
	}
	resp := ToRecipientResponse(r)
	return &resp, nil
}

// CampaignOfRecipient resolves the campaign a recipient belongs to, for
// routes addressed by recipient id alone
func (s *Service) CampaignOfRecipient(ctx context.Context, tenantID, recipientID uuid.UUID) (uuid.UUID, error) {
	r, err := s.recipients.FindByIDForTenant(ctx, tenantID, recipientID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return uuid.Nil, err
	}
	if r == nil {
		return uuid.Nil, shared.NewDomainError(shared.ErrNotFound.Code, "Recipient not found")
	}
	return r.CampaignID, nil
}

// ResetRecipient returns a failed recipient to pending. While the campaign
// is still processing its dispatch is queued again to pick the recipient up.
func (s *Service) ResetRecipient(ctx context.Context, tenantID, campaignID, recipientID uuid.UUID) (*RecipientResponse, error) {
	c, err := s.load(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, ErrCampaignFinished
	}
	r, err := s.loadRecipient(ctx, tenantID, campaignID, recipientID)
	if err != nil {
		return nil, err
	}
	if err := r.ResetForRetry(); err != nil {
		return nil, err
	}
	if err := s.recipients.Save(ctx, r); err != nil {
		return nil, err
	}
	s.publish(ctx, r)

	// A processing campaign is recounted by its dispatch, which also picks
	// up recipients reset while it runs.
	if c.Status == campaign.CampaignStatusProcessing {
		if err := s.dispatcher.Enqueue(ctx, tenantID, campaignID); err != nil {
			logger.Enrich(ctx, s.logger).Error("Failed to enqueue dispatch after recipient reset",
				zap.String("campaign_id", campaignID.String()), zap.Error(err))
		}
	} else if err := s.refresh(ctx, c); err != nil {
		return nil, err
	}

	resp := ToRecipientResponse(r)
	return &resp, nil
}

// CorrectAddress replaces a recipient's address through the validation
// round trip. Suppression is not re-evaluated.
func (s *Service) CorrectAddress(ctx context.Context, tenantID, campaignID, recipientID uuid.UUID, req CorrectAddressRequest) (*RecipientResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if err := c.EnsureEditable(); err != nil {
		return nil, err
	}
	r, err := s.loadRecipient(ctx, tenantID, campaignID, recipientID)
	if err != nil {
		return nil, err
	}
	addr, err := req.Address.ToPostalAddress()
	if err != nil {
		return nil, invalidAddress(err)
	}

	if r.Status == campaign.RecipientStatusPending {
		if err := r.StartValidation(); err != nil {
			return nil, err
		}
	}
	if err := r.CompleteValidation(addr); err != nil {
		return nil, err
	}
	if err := s.recipients.Save(ctx, r); err != nil {
		return nil, err
	}
	s.publish(ctx, r)

	resp := ToRecipientResponse(r)
	return &resp, nil
}

// ReevaluateSuppression re-runs the suppression rules over every recipient
// of a draft campaign. It only runs when asked to.
func (s *Service) ReevaluateSuppression(ctx context.Context, tenantID, campaignID uuid.UUID) (*ReevaluateResponse, error) {
	c, err := s.load(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if err := c.EnsureEditable(); err != nil {
		return nil, err
	}
	policy, err := s.evaluator.PolicyFor(ctx, c)
	if err != nil {
		return nil, err
	}

	resp := &ReevaluateResponse{}
	var changed []*campaign.Recipient
	for page := 1; ; page++ {
		recipients, err := s.recipients.FindByCampaign(ctx, tenantID, campaignID,
			shared.Filter{Page: page, PageSize: reevaluatePageSize})
		if err != nil {
			return nil, err
		}
		for i := range recipients {
			r := &recipients[i]
			wasSuppressed, oldReason := r.Suppressed, r.SuppressionReason
			if err := s.evaluator.Apply(ctx, policy, r); err != nil {
				return nil, err
			}
			resp.Evaluated++
			if r.Suppressed {
				resp.Suppressed++
			}
			if r.Suppressed != wasSuppressed || r.SuppressionReason != oldReason {
				changed = append(changed, r)
			}
		}
		if len(recipients) < reevaluatePageSize {
			break
		}
	}

	if len(changed) > 0 {
		if err := s.recipients.SaveBatch(ctx, changed); err != nil {
			return nil, err
		}
	}
	resp.Changed = len(changed)

	logger.Enrich(ctx, s.logger).Info("Suppression re-evaluated",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("evaluated", resp.Evaluated),
		zap.Int("changed", resp.Changed))
	return resp, nil
}

// refresh recounts a campaign after its recipients changed. Only a draft is
// written whole; otherwise just the counters are.
func (s *Service) refresh(ctx context.Context, c *campaign.Campaign) error {
	if err := s.recount(ctx, c); err != nil {
		return err
	}
	save := s.campaigns.SaveRollup
	if c.IsEditable() {
		save = s.campaigns.Save
	}
	if err := save(ctx, c); err != nil {
		return err
	}
	s.publish(ctx, c)
	return nil
}

func (s *Service) loadRecipient(ctx context.Context, tenantID, campaignID, recipientID uuid.UUID) (*campaign.Recipient, error) {
	r, err := s.recipients.FindByIDForTenant(ctx, tenantID, recipientID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if r == nil || r.CampaignID != campaignID {
		return nil, shared.NewDomainError(shared.ErrNotFound.Code, "Recipient not found")
	}
	return r, nil
}

func buildRecipient(c *campaign.Campaign, req RecipientRequest) (*campaign.Recipient, error) {
	addr, err := req.Address.ToPostalAddress()
	if err != nil {
		return nil, invalidAddress(err)
	}
	return campaign.NewRecipient(c.TenantID, c.ID, campaign.RecipientInput{
		Name:        req.Name,
		Address:     addr,
		Email:       req.Email,
		Phone:       req.Phone,
		ProfileID:   req.ProfileID,
		MergeFields: req.MergeFields,
	})
}

func rowError(line int, err error) csvimport.RowError {
	msg := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) {
		msg = de.Message
	}
	return csvimport.NewRowError(line, "", csvimport.ErrCodeImportValidation, msg)
}
