package campaign

import (
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
	csvimport "github.com/postcard/backend/internal/infrastructure/import"
)

// CreateCampaignRequest represents a request to create a new campaign
type CreateCampaignRequest struct {
	Name        string             `json:"name" binding:"required,min=1,max=200"`
	Description string             `json:"description" binding:"max=2000"`
	MailClass   campaign.MailClass `json:"mail_class" binding:"omitempty,oneof=first_class standard"`
	MailSize    campaign.MailSize  `json:"mail_size" binding:"omitempty,oneof=4x6 6x9 6x11"`
	CreatedBy   *uuid.UUID         `json:"-"`
}

// ArtworkRequest describes the artwork for one side
type ArtworkRequest struct {
	Kind       campaign.ArtworkKind `json:"kind" binding:"required,oneof=pdf_url html uploaded"`
	URL        string               `json:"url" binding:"omitempty,url,max=2048"`
	HTML       string               `json:"html" binding:"max=100000"`
	StorageKey string               `json:"storage_key" binding:"max=512"`
}

// ReturnAddressRequest is the sender printed on every postcard
type ReturnAddressRequest struct {
	Name    string         `json:"name" binding:"required,max=40"`
	Address AddressRequest `json:"address" binding:"required"`
}

// SuppressionPolicyRequest replaces the campaign's suppression policy. A nil
// lookback uses the tenant default; 0 disables the rule.
type SuppressionPolicyRequest struct {
	Override        bool `json:"override"`
	RecentOrderDays *int `json:"recent_order_days" binding:"omitempty,gte=0,lte=3650"`
	RecentMailDays  *int `json:"recent_mail_days" binding:"omitempty,gte=0,lte=3650"`
}

// UpdateContentRequest changes a draft campaign. Omitted fields are kept.
type UpdateContentRequest struct {
	Name          *string                   `json:"name" binding:"omitempty,min=1,max=200"`
	Description   *string                   `json:"description" binding:"omitempty,max=2000"`
	MailClass     *campaign.MailClass       `json:"mail_class" binding:"omitempty,oneof=first_class standard"`
	MailSize      *campaign.MailSize        `json:"mail_size" binding:"omitempty,oneof=4x6 6x9 6x11"`
	Front         *ArtworkRequest           `json:"front"`
	Back          *ArtworkRequest           `json:"back"`
	ReturnAddress *ReturnAddressRequest     `json:"return_address"`
	Suppression   *SuppressionPolicyRequest `json:"suppression"`
}

// AddressRequest is a US postal address as submitted by clients
type AddressRequest struct {
	Line1   string `json:"line1" binding:"required,max=64"`
	Line2   string `json:"line2" binding:"max=64"`
	City    string `json:"city" binding:"required,max=200"`
	State   string `json:"state" binding:"required,len=2,alpha"`
	Zip     string `json:"zip" binding:"required,min=5,max=10"`
	Country string `json:"country" binding:"omitempty,len=2"`
}

// ToPostalAddress validates and converts the request
func (a AddressRequest) ToPostalAddress() (valueobject.PostalAddress, error) {
	return valueobject.AddressDTO{
		Line1:   a.Line1,
		Line2:   a.Line2,
		City:    a.City,
		State:   a.State,
		Zip:     a.Zip,
		Country: a.Country,
	}.ToPostalAddress()
}

// RecipientRequest represents one recipient to add
type RecipientRequest struct {
	Name        string            `json:"name" binding:"required,max=40"`
	Address     AddressRequest    `json:"address" binding:"required"`
	Email       string            `json:"email" binding:"omitempty,email,max=254"`
	Phone       string            `json:"phone" binding:"max=30"`
	ProfileID   *uuid.UUID        `json:"profile_id"`
	MergeFields map[string]string `json:"merge_fields" binding:"omitempty,max=50,dive,keys,max=64,endkeys,max=500"`
}

// ImportRecipientsRequest adds recipients in bulk. Rows are validated
// individually; invalid rows are reported and skipped.
type ImportRecipientsRequest struct {
	Recipients []RecipientRequest `json:"recipients" binding:"required,min=1,max=10000"`
}

// ImportResult summarizes a bulk recipient import
type ImportResult struct {
	Imported   int                  `json:"imported"`
	Suppressed int                  `json:"suppressed"`
	Rejected   int                  `json:"rejected"`
	Errors     []csvimport.RowError `json:"errors,omitempty"`
	Truncated  bool                 `json:"errors_truncated,omitempty"`
}

// CorrectAddressRequest replaces a recipient's address
type CorrectAddressRequest struct {
	Address AddressRequest `json:"address" binding:"required"`
}

// ScheduleRequest schedules a draft campaign for later release
type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

// ProofRequest selects the recipient whose merge fields fill the proof. The
// first recipient is used when omitted.
type ProofRequest struct {
	RecipientID *uuid.UUID `json:"recipient_id"`
}

// UploadURLRequest asks for a presigned artwork upload URL
type UploadURLRequest struct {
	Side        campaign.Side `json:"side" binding:"required,oneof=front back"`
	Filename    string        `json:"filename" binding:"required,max=200"`
	ContentType string        `json:"content_type" binding:"required,oneof=application/pdf image/png image/jpeg"`
}

// UploadURLResponse is a presigned upload target
type UploadURLResponse struct {
	URL        string    `json:"url"`
	StorageKey string    `json:"storage_key"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// EstimateResponse is the cost estimate of a draft campaign
type EstimateResponse struct {
	RecipientCount    int   `json:"recipient_count"`
	UnitCost          int64 `json:"unit_cost"`
	EstimatedCost     int64 `json:"estimated_cost"`
	SufficientBalance bool  `json:"sufficient_balance"`
}

// ReevaluateResponse summarizes an on-demand suppression pass
type ReevaluateResponse struct {
	Evaluated  int `json:"evaluated"`
	Suppressed int `json:"suppressed"`
	Changed    int `json:"changed"`
}

// CampaignListFilter represents filter options for the campaign list
type CampaignListFilter struct {
	Search    string `form:"search"`
	Status    string `form:"status" binding:"omitempty,oneof=draft scheduled processing completed completed_with_errors failed cancelled"`
	MailClass string `form:"mail_class" binding:"omitempty,oneof=first_class standard"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy   string `form:"order_by"`
	OrderDir  string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// RecipientListFilter represents filter options for a campaign's recipients
type RecipientListFilter struct {
	Search     string `form:"search"`
	Status     string `form:"status" binding:"omitempty,oneof=pending validating sending sent in_transit delivered returned failed"`
	Suppressed *bool  `form:"suppressed"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=500"`
}

// CampaignResponse represents a campaign in API responses
type CampaignResponse struct {
	ID                  uuid.UUID               `json:"id"`
	TenantID            uuid.UUID               `json:"tenant_id"`
	Name                string                  `json:"name"`
	Description         string                  `json:"description,omitempty"`
	Status              string                  `json:"status"`
	MailClass           string                  `json:"mail_class"`
	MailSize            string                  `json:"mail_size"`
	Front               *campaign.Artwork       `json:"front,omitempty"`
	Back                *campaign.Artwork       `json:"back,omitempty"`
	FromName            string                  `json:"from_name,omitempty"`
	FromAddress         *valueobject.AddressDTO `json:"from_address,omitempty"`
	RecipientCount      int                     `json:"recipient_count"`
	SentCount           int                     `json:"sent_count"`
	FailedCount         int                     `json:"failed_count"`
	DeliveredCount      int                     `json:"delivered_count"`
	EstimatedCost       int64                   `json:"estimated_cost"`
	ActualCost          int64                   `json:"actual_cost"`
	SuppressionOverride bool                    `json:"suppression_override"`
	RecentOrderDays     *int                    `json:"recent_order_days"`
	RecentMailDays      *int                    `json:"recent_mail_days"`
	ScheduledAt         *time.Time              `json:"scheduled_at,omitempty"`
	SentAt              *time.Time              `json:"sent_at,omitempty"`
	CompletedAt         *time.Time              `json:"completed_at,omitempty"`
	CancelledAt         *time.Time              `json:"cancelled_at,omitempty"`
	ChargedAt           *time.Time              `json:"charged_at,omitempty"`
	FailureReason       string                  `json:"failure_reason,omitempty"`
	CreatedBy           *uuid.UUID              `json:"created_by,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
	Version             int                     `json:"version"`
}

// CampaignListResponse represents a list item for campaigns
type CampaignListResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	MailClass      string     `json:"mail_class"`
	MailSize       string     `json:"mail_size"`
	RecipientCount int        `json:"recipient_count"`
	SentCount      int        `json:"sent_count"`
	FailedCount    int        `json:"failed_count"`
	EstimatedCost  int64      `json:"estimated_cost"`
	ActualCost     int64      `json:"actual_cost"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RecipientResponse represents a recipient in API responses
type RecipientResponse struct {
	ID                   uuid.UUID              `json:"id"`
	CampaignID           uuid.UUID              `json:"campaign_id"`
	Name                 string                 `json:"name"`
	Address              valueobject.AddressDTO `json:"address"`
	Email                string                 `json:"email,omitempty"`
	Phone                string                 `json:"phone,omitempty"`
	ProfileID            *uuid.UUID             `json:"profile_id,omitempty"`
	MergeFields          map[string]string      `json:"merge_fields,omitempty"`
	Status               string                 `json:"status"`
	Suppressed           bool                   `json:"suppressed"`
	SuppressionReason    string                 `json:"suppression_reason,omitempty"`
	VendorObjectID       *string                `json:"vendor_object_id,omitempty"`
	Attempts             int                    `json:"attempts"`
	ActualCost           int64                  `json:"actual_cost"`
	TrackingURL          string                 `json:"tracking_url,omitempty"`
	ExpectedDeliveryDate *time.Time             `json:"expected_delivery_date,omitempty"`
	SendError            string                 `json:"send_error,omitempty"`
	SentAt               *time.Time             `json:"sent_at,omitempty"`
	DeliveredAt          *time.Time             `json:"delivered_at,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
}

// ToCampaignResponse converts a domain Campaign to CampaignResponse
func ToCampaignResponse(c *campaign.Campaign) CampaignResponse {
	resp := CampaignResponse{
		ID:                  c.ID,
		TenantID:            c.TenantID,
		Name:                c.Name,
		Description:         c.Description,
		Status:              c.Status.String(),
		MailClass:           c.MailClass.String(),
		MailSize:            c.MailSize.String(),
		FromName:            c.FromName,
		RecipientCount:      c.RecipientCount,
		SentCount:           c.SentCount,
		FailedCount:         c.FailedCount,
		DeliveredCount:      c.DeliveredCount,
		EstimatedCost:       c.EstimatedCost,
		ActualCost:          c.ActualCost,
		SuppressionOverride: c.SuppressionOverride,
		RecentOrderDays:     c.RecentOrderDays,
		RecentMailDays:      c.RecentMailDays,
		ScheduledAt:         c.ScheduledAt,
		SentAt:              c.SentAt,
		CompletedAt:         c.CompletedAt,
		CancelledAt:         c.CancelledAt,
		ChargedAt:           c.ChargedAt,
		FailureReason:       c.FailureReason,
		CreatedBy:           c.CreatedBy,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
		Version:             c.Version,
	}
	if !c.Front.IsEmpty() {
		front := c.Front
		resp.Front = &front
	}
	if !c.Back.IsEmpty() {
		back := c.Back
		resp.Back = &back
	}
	if !c.FromAddress.IsEmpty() {
		addr := c.FromAddress.ToDTO()
		resp.FromAddress = &addr
	}
	return resp
}

// ToCampaignListResponse converts a domain Campaign to a list item
func ToCampaignListResponse(c *campaign.Campaign) CampaignListResponse {
	return CampaignListResponse{
		ID:             c.ID,
		Name:           c.Name,
		Status:         c.Status.String(),
		MailClass:      c.MailClass.String(),
		MailSize:       c.MailSize.String(),
		RecipientCount: c.RecipientCount,
		SentCount:      c.SentCount,
		FailedCount:    c.FailedCount,
		EstimatedCost:  c.EstimatedCost,
		ActualCost:     c.ActualCost,
		ScheduledAt:    c.ScheduledAt,
		CreatedAt:      c.CreatedAt,
	}
}

// ToRecipientResponse converts a domain Recipient to RecipientResponse
func ToRecipientResponse(r *campaign.Recipient) RecipientResponse {
	return RecipientResponse{
		ID:                   r.ID,
		CampaignID:           r.CampaignID,
		Name:                 r.Name,
		Address:              r.Address.ToDTO(),
		Email:                r.Email,
		Phone:                r.Phone,
		ProfileID:            r.ProfileID,
		MergeFields:          r.MergeFields,
		Status:               r.Status.String(),
		Suppressed:           r.Suppressed,
		SuppressionReason:    r.SuppressionReason,
		VendorObjectID:       r.VendorObjectID,
		Attempts:             r.Attempts,
		ActualCost:           r.ActualCost,
		TrackingURL:          r.TrackingURL,
		ExpectedDeliveryDate: r.ExpectedDeliveryDate,
		SendError:            r.SendError,
		SentAt:               r.SentAt,
		DeliveredAt:          r.DeliveredAt,
		CreatedAt:            r.CreatedAt,
	}
}
