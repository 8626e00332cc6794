package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
)

// AddressColumns stores a postal address as flat columns
type AddressColumns struct {
	Line1   string `gorm:"column:line1;type:varchar(64)"`
	Line2   string `gorm:"column:line2;type:varchar(64)"`
	City    string `gorm:"column:city;type:varchar(200)"`
	State   string `gorm:"column:state;type:varchar(2)"`
	Zip     string `gorm:"column:zip;type:varchar(10)"`
	Country string `gorm:"column:country;type:varchar(2)"`
}

// AddressColumnsFromDomain flattens a postal address
func AddressColumnsFromDomain(a valueobject.PostalAddress) AddressColumns {
	return AddressColumns{
		Line1:   a.Line1(),
		Line2:   a.Line2(),
		City:    a.City(),
		State:   a.State(),
		Zip:     a.Zip(),
		Country: a.Country(),
	}
}

// ToDomain rebuilds the address. Rows are validated on the way in, so a row
// that no longer validates is returned as an empty address.
func (c AddressColumns) ToDomain() valueobject.PostalAddress {
	addr, err := valueobject.AddressDTO{
		Line1:   c.Line1,
		Line2:   c.Line2,
		City:    c.City,
		State:   c.State,
		Zip:     c.Zip,
		Country: c.Country,
	}.ToPostalAddress()
	if err != nil {
		return valueobject.EmptyPostalAddress()
	}
	return addr
}

// ArtworkColumns stores one postcard side
type ArtworkColumns struct {
	Kind       string `gorm:"column:kind;type:varchar(20)"`
	URL        string `gorm:"column:url;type:text"`
	HTML       string `gorm:"column:html;type:text"`
	StorageKey string `gorm:"column:storage_key;type:varchar(500)"`
}

func artworkColumnsFromDomain(a campaign.Artwork) ArtworkColumns {
	return ArtworkColumns{Kind: string(a.Kind), URL: a.URL, HTML: a.HTML, StorageKey: a.StorageKey}
}

func (c ArtworkColumns) toDomain() campaign.Artwork {
	return campaign.Artwork{Kind: campaign.ArtworkKind(c.Kind), URL: c.URL, HTML: c.HTML, StorageKey: c.StorageKey}
}

// CampaignModel is the GORM model for the campaigns table
type CampaignModel struct {
	TenantAggregateModel
	Name        string         `gorm:"type:varchar(200);not null"`
	Description string         `gorm:"type:text"`
	Status      string         `gorm:"type:varchar(30);not null;default:'draft';index:idx_campaign_status_scheduled,priority:1"`
	MailClass   string         `gorm:"column:mail_class;type:varchar(20);not null"`
	MailSize    string         `gorm:"column:mail_size;type:varchar(10);not null"`
	Front       ArtworkColumns `gorm:"embedded;embeddedPrefix:front_"`
	Back        ArtworkColumns `gorm:"embedded;embeddedPrefix:back_"`
	FromName    string         `gorm:"column:from_name;type:varchar(40)"`
	FromAddress AddressColumns `gorm:"embedded;embeddedPrefix:from_"`

	RecipientCount int   `gorm:"column:recipient_count;not null;default:0"`
	SentCount      int   `gorm:"column:sent_count;not null;default:0"`
	FailedCount    int   `gorm:"column:failed_count;not null;default:0"`
	DeliveredCount int   `gorm:"column:delivered_count;not null;default:0"`
	EstimatedCost  int64 `gorm:"column:estimated_cost;not null;default:0"`
	ActualCost     int64 `gorm:"column:actual_cost;not null;default:0"`

	SuppressionOverride bool `gorm:"column:suppression_override;not null;default:false"`
	RecentOrderDays     *int `gorm:"column:recent_order_days"`
	RecentMailDays      *int `gorm:"column:recent_mail_days"`

	ScheduledAt   *time.Time `gorm:"column:scheduled_at;index:idx_campaign_status_scheduled,priority:2"`
	SentAt        *time.Time `gorm:"column:sent_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at"`
	CancelledAt   *time.Time `gorm:"column:cancelled_at"`
	ChargedAt     *time.Time `gorm:"column:charged_at"`
	FailureReason string     `gorm:"column:failure_reason;type:text"`
}

// TableName returns the table name for CampaignModel
func (CampaignModel) TableName() string {
	return "campaigns"
}

// ToDomain converts CampaignModel to domain Campaign
func (m *CampaignModel) ToDomain() *campaign.Campaign {
	c := &campaign.Campaign{
		Name:                m.Name,
		Description:         m.Description,
		Status:              campaign.CampaignStatus(m.Status),
		MailClass:           campaign.MailClass(m.MailClass),
		MailSize:            campaign.MailSize(m.MailSize),
		Front:               m.Front.toDomain(),
		Back:                m.Back.toDomain(),
		FromName:            m.FromName,
		FromAddress:         m.FromAddress.ToDomain(),
		RecipientCount:      m.RecipientCount,
		SentCount:           m.SentCount,
		FailedCount:         m.FailedCount,
		DeliveredCount:      m.DeliveredCount,
		EstimatedCost:       m.EstimatedCost,
		ActualCost:          m.ActualCost,
		SuppressionOverride: m.SuppressionOverride,
		RecentOrderDays:     m.RecentOrderDays,
		RecentMailDays:      m.RecentMailDays,
		ScheduledAt:         m.ScheduledAt,
		SentAt:              m.SentAt,
		CompletedAt:         m.CompletedAt,
		CancelledAt:         m.CancelledAt,
		ChargedAt:           m.ChargedAt,
		FailureReason:       m.FailureReason,
	}
	m.PopulateTenantAggregateRoot(&c.TenantAggregateRoot)
	return c
}

// CampaignModelFromDomain creates a CampaignModel from domain Campaign
func CampaignModelFromDomain(c *campaign.Campaign) *CampaignModel {
	m := &CampaignModel{
		Name:                c.Name,
		Description:         c.Description,
		Status:              string(c.Status),
		MailClass:           string(c.MailClass),
		MailSize:            string(c.MailSize),
		Front:               artworkColumnsFromDomain(c.Front),
		Back:                artworkColumnsFromDomain(c.Back),
		FromName:            c.FromName,
		FromAddress:         AddressColumnsFromDomain(c.FromAddress),
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
	}
	m.FromDomainTenantAggregateRoot(c.TenantAggregateRoot)
	return m
}

// RecipientModel is the GORM model for the campaign_recipients table.
// vendor_object_id is unique across all rows; NULLs do not collide.
type RecipientModel struct {
	TenantAggregateModel
	CampaignID  uuid.UUID         `gorm:"column:campaign_id;type:uuid;not null;index:idx_recipient_campaign_status,priority:1"`
	Name        string            `gorm:"type:varchar(40);not null"`
	Address     AddressColumns    `gorm:"embedded;embeddedPrefix:address_"`
	Email       string            `gorm:"type:varchar(255);index"`
	Phone       string            `gorm:"type:varchar(50)"`
	ProfileID   *uuid.UUID        `gorm:"column:profile_id;type:uuid"`
	MergeFields map[string]string `gorm:"column:merge_fields;type:jsonb;serializer:json"`

	Status            string `gorm:"type:varchar(20);not null;default:'pending';index:idx_recipient_campaign_status,priority:2"`
	Suppressed        bool   `gorm:"not null;default:false"`
	SuppressionReason string `gorm:"column:suppression_reason;type:varchar(255)"`

	VendorObjectID         *string    `gorm:"column:vendor_object_id;type:varchar(100);uniqueIndex:uniq_recipient_vendor_object"`
	Attempts               int        `gorm:"not null;default:0"`
	ActualCost             int64      `gorm:"column:actual_cost;not null;default:0"`
	TrackingURL            string     `gorm:"column:tracking_url;type:text"`
	ExpectedDeliveryDate   *time.Time `gorm:"column:expected_delivery_date"`
	SendError              string     `gorm:"column:send_error;type:text"`
	VendorResponseSnapshot string     `gorm:"column:vendor_response_snapshot;type:text"`
	SentAt                 *time.Time `gorm:"column:sent_at"`
	DeliveredAt            *time.Time `gorm:"column:delivered_at"`
}

// TableName returns the table name for RecipientModel
func (RecipientModel) TableName() string {
	return "campaign_recipients"
}

// ToDomain converts RecipientModel to domain Recipient
func (m *RecipientModel) ToDomain() *campaign.Recipient {
	fields := m.MergeFields
	if fields == nil {
		fields = map[string]string{}
	}
	r := &campaign.Recipient{
		CampaignID:             m.CampaignID,
		Name:                   m.Name,
		Address:                m.Address.ToDomain(),
		Email:                  m.Email,
		Phone:                  m.Phone,
		ProfileID:              m.ProfileID,
		MergeFields:            fields,
		Status:                 campaign.RecipientStatus(m.Status),
		Suppressed:             m.Suppressed,
		SuppressionReason:      m.SuppressionReason,
		VendorObjectID:         m.VendorObjectID,
		Attempts:               m.Attempts,
		ActualCost:             m.ActualCost,
		TrackingURL:            m.TrackingURL,
		ExpectedDeliveryDate:   m.ExpectedDeliveryDate,
		SendError:              m.SendError,
		VendorResponseSnapshot: m.VendorResponseSnapshot,
		SentAt:                 m.SentAt,
		DeliveredAt:            m.DeliveredAt,
	}
	m.PopulateTenantAggregateRoot(&r.TenantAggregateRoot)
	return r
}

// RecipientModelFromDomain creates a RecipientModel from domain Recipient
func RecipientModelFromDomain(r *campaign.Recipient) *RecipientModel {
	var vendorID *string
	if r.HasVendorObject() {
		id := *r.VendorObjectID
		vendorID = &id
	}
	m := &RecipientModel{
		CampaignID:             r.CampaignID,
		Name:                   r.Name,
		Address:                AddressColumnsFromDomain(r.Address),
		Email:                  r.Email,
		Phone:                  r.Phone,
		ProfileID:              r.ProfileID,
		MergeFields:            r.MergeFields,
		Status:                 string(r.Status),
		Suppressed:             r.Suppressed,
		SuppressionReason:      r.SuppressionReason,
		VendorObjectID:         vendorID,
		Attempts:               r.Attempts,
		ActualCost:             r.ActualCost,
		TrackingURL:            r.TrackingURL,
		ExpectedDeliveryDate:   r.ExpectedDeliveryDate,
		SendError:              r.SendError,
		VendorResponseSnapshot: r.VendorResponseSnapshot,
		SentAt:                 r.SentAt,
		DeliveredAt:            r.DeliveredAt,
	}
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	return m
}
