package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/shared"
)

// BaseModel holds the id and timestamp columns shared by every table
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID, m.CreatedAt, m.UpdatedAt = e.ID, e.CreatedAt, e.UpdatedAt
}

// TenantAggregateModel adds the tenant, creator and version columns of
// campaigns and recipients
type TenantAggregateModel struct {
	BaseModel
	Version   int        `gorm:"not null;default:1"`
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid;index"`
}

func (m *TenantAggregateModel) FromDomainTenantAggregateRoot(a shared.TenantAggregateRoot) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.Version = a.Version
	m.TenantID = a.TenantID
	m.CreatedBy = a.CreatedBy
}

func (m *TenantAggregateModel) PopulateTenantAggregateRoot(a *shared.TenantAggregateRoot) {
	a.BaseEntity = m.ToDomain()
	a.Version = m.Version
	a.TenantID = m.TenantID
	a.CreatedBy = m.CreatedBy
}
