package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Auditable carries who-did-what-when metadata for every tracked row.
// The unit of work is the only writer of these fields.
type Auditable struct {
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	CreatedBy  *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	ModifiedAt *time.Time `json:"modified_at"`
	ModifiedBy *uuid.UUID `gorm:"type:uuid" json:"modified_by"`
	DeletedAt  *time.Time `json:"deleted_at"`
	DeletedBy  *uuid.UUID `gorm:"type:uuid" json:"deleted_by"`
	IsDeleted  bool       `gorm:"not null;default:false;index" json:"is_deleted"`

	// deletion flag as last read from or written to the store
	persistedDeleted bool
}

// HasAuditFields is satisfied by every persisted, audited entity.
type HasAuditFields interface {
	AuditFields() *Auditable
}

func (a *Auditable) AuditFields() *Auditable { return a }

// MarkDeleted raises the logical-deletion signal. The stamp is applied at commit.
func (a *Auditable) MarkDeleted() { a.IsDeleted = true }

// Restore clears the logical-deletion signal.
func (a *Auditable) Restore() { a.IsDeleted = false }

// DeletionRequested reports a false -> true transition of the deletion signal
// since the entity was loaded or last committed.
func (a *Auditable) DeletionRequested() bool {
	return a.IsDeleted && !a.persistedDeleted
}

// RestoreRequested reports a true -> false transition of the deletion signal.
func (a *Auditable) RestoreRequested() bool {
	return !a.IsDeleted && a.persistedDeleted
}

// Snapshot records the current deletion flag as the persisted one.
func (a *Auditable) Snapshot() { a.persistedDeleted = a.IsDeleted }

func (a *Auditable) AfterFind(*gorm.DB) error {
	a.Snapshot()
	return nil
}

// Base is embedded by every entity: identity, optimistic version and audit fields.
type Base struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Version int64     `gorm:"not null;default:1" json:"version"`
	Auditable
}

func (b *Base) Meta() *Base { return b }

// Entity is what the unit of work accepts.
type Entity interface {
	HasAuditFields
	Meta() *Base
}

// NewID returns a time-ordered id so that id order follows insertion order.
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
