package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/fulfillment"
)

// VendorAPILogModel is the GORM model for the vendor_api_logs table
type VendorAPILogModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID         uuid.UUID  `gorm:"type:uuid;not null;index:idx_vendor_log_tenant_time,priority:1"`
	CampaignID       *uuid.UUID `gorm:"column:campaign_id;type:uuid;index"`
	RecipientID      *uuid.UUID `gorm:"column:recipient_id;type:uuid;index"`
	Endpoint         string     `gorm:"type:varchar(255);not null"`
	Method           string     `gorm:"type:varchar(10);not null"`
	RequestBody      string     `gorm:"column:request_body;type:text"`
	ResponseBody     string     `gorm:"column:response_body;type:text"`
	StatusCode       int        `gorm:"column:status_code"`
	Success          bool       `gorm:"not null"`
	ErrorMessage     string     `gorm:"column:error_message;type:text"`
	DurationMs       int64      `gorm:"column:duration_ms"`
	CostCents        int64      `gorm:"column:cost_cents"`
	VendorObjectID   string     `gorm:"column:vendor_object_id;type:varchar(100);index"`
	VendorObjectType string     `gorm:"column:vendor_object_type;type:varchar(30)"`
	CreatedAt        time.Time  `gorm:"not null;index:idx_vendor_log_tenant_time,priority:2"`
}

// TableName returns the table name for VendorAPILogModel
func (VendorAPILogModel) TableName() string {
	return "vendor_api_logs"
}

// ToDomain converts VendorAPILogModel to domain VendorAPILog
func (m *VendorAPILogModel) ToDomain() *fulfillment.VendorAPILog {
	return &fulfillment.VendorAPILog{
		ID:               m.ID,
		TenantID:         m.TenantID,
		CampaignID:       m.CampaignID,
		RecipientID:      m.RecipientID,
		Endpoint:         m.Endpoint,
		Method:           m.Method,
		RequestBody:      m.RequestBody,
		ResponseBody:     m.ResponseBody,
		StatusCode:       m.StatusCode,
		Success:          m.Success,
		ErrorMessage:     m.ErrorMessage,
		DurationMs:       m.DurationMs,
		CostCents:        m.CostCents,
		VendorObjectID:   m.VendorObjectID,
		VendorObjectType: m.VendorObjectType,
		CreatedAt:        m.CreatedAt,
	}
}

// VendorAPILogModelFromDomain creates a VendorAPILogModel from domain VendorAPILog
func VendorAPILogModelFromDomain(l *fulfillment.VendorAPILog) *VendorAPILogModel {
	return &VendorAPILogModel{
		ID:               l.ID,
		TenantID:         l.TenantID,
		CampaignID:       l.CampaignID,
		RecipientID:      l.RecipientID,
		Endpoint:         l.Endpoint,
		Method:           l.Method,
		RequestBody:      l.RequestBody,
		ResponseBody:     l.ResponseBody,
		StatusCode:       l.StatusCode,
		Success:          l.Success,
		ErrorMessage:     l.ErrorMessage,
		DurationMs:       l.DurationMs,
		CostCents:        l.CostCents,
		VendorObjectID:   l.VendorObjectID,
		VendorObjectType: l.VendorObjectType,
		CreatedAt:        l.CreatedAt,
	}
}
