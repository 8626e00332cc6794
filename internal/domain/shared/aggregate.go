package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity holds the identity and timestamps every stored row carries
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity assigns a fresh ID
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// EventSource is implemented by aggregates that record domain events while
// their state changes. The application layer drains them after saving.
type EventSource interface {
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// TenantAggregateRoot is the root of a tenant-owned aggregate such as a
// campaign or one of its recipients. Version backs optimistic locking.
type TenantAggregateRoot struct {
	BaseEntity
	TenantID  uuid.UUID
	CreatedBy *uuid.UUID
	Version   int

	pending []DomainEvent
}

// NewTenantAggregateRoot starts a new aggregate at version 1
func NewTenantAggregateRoot(tenantID uuid.UUID) TenantAggregateRoot {
	return TenantAggregateRoot{
		BaseEntity: NewBaseEntity(),
		TenantID:   tenantID,
		Version:    1,
	}
}

// SetCreatedBy records the user who created the aggregate
func (a *TenantAggregateRoot) SetCreatedBy(userID uuid.UUID) {
	a.CreatedBy = &userID
}

// IncrementVersion bumps the version after a persisted change
func (a *TenantAggregateRoot) IncrementVersion() {
	a.Version++
}

// AddDomainEvent queues an event until the aggregate is drained
func (a *TenantAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.pending = append(a.pending, event)
}

func (a *TenantAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.pending
}

func (a *TenantAggregateRoot) ClearDomainEvents() {
	a.pending = nil
}
