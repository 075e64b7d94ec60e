package model

import (
	"github.com/google/uuid"
)

// Role groups permissions. Roles are process-wide reference data.
type Role struct {
	Base
	Name        string `gorm:"type:varchar(100);not null" json:"name"`
	Key         string `gorm:"type:varchar(100);not null;uniqueIndex:idx_roles_key_live,where:is_deleted = false" json:"key"`
	Description string `gorm:"type:text" json:"description"`
	IsSystem    bool   `gorm:"not null;default:false" json:"is_system"` // seeded roles cannot be deleted
}

// Permission is a single grantable capability, identified by Key (e.g. "roles.manage").
type Permission struct {
	Base
	Name  string `gorm:"type:varchar(255);not null" json:"name"`
	Key   string `gorm:"type:varchar(100);not null;uniqueIndex:idx_permissions_key_live,where:is_deleted = false" json:"key"`
	Group string `gorm:"type:varchar(50);not null;default:'general';index" json:"group"`
}

// RolePermission associates a role with a permission. A pair is unique among live rows.
type RolePermission struct {
	Base
	RoleID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_role_permissions_live,where:is_deleted = false" json:"role_id"`
	PermissionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_role_permissions_live,where:is_deleted = false;index" json:"permission_id"`
}
