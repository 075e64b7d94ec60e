package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is the append-only trail of stamped writes, one row per entity
// per committed unit of work. It is itself not auditable.
type AuditLog struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID  *uuid.UUID `gorm:"type:uuid;index" json:"actor_id"`
	Action   string     `gorm:"type:varchar(20);not null;index" json:"action"`
	Entity   string     `gorm:"type:varchar(50);not null;index:idx_audit_logs_entity" json:"entity"`
	EntityID uuid.UUID  `gorm:"type:uuid;not null;index:idx_audit_logs_entity" json:"entity_id"`
	At       time.Time  `gorm:"not null;index" json:"at"`
	// OrganizationID is the tenant the entity belonged to when it was
	// written. Catalog rows (roles, permissions, grants) have none.
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id"`
}

// OrgOwned entities belong to a tenant directly.
type OrgOwned interface {
	OwningOrganization() uuid.UUID
}

// UserOwned entities belong to the tenant of their user.
type UserOwned interface {
	OwningUser() uuid.UUID
}

func (o *Organization) OwningOrganization() uuid.UUID { return o.ID }
func (u *User) OwningOrganization() uuid.UUID         { return u.OrganizationID }
func (ur *UserRole) OwningUser() uuid.UUID            { return ur.UserID }
func (t *Token) OwningUser() uuid.UUID                { return t.UserID }
