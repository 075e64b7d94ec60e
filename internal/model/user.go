package model

import (
	"github.com/google/uuid"
)

// User belongs to exactly one organization (its tenant scope).
type User struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Username       string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_username_live,where:is_deleted = false" json:"username"`
	Email          string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email_live,where:is_deleted = false" json:"email"`
	FullName       string    `gorm:"type:varchar(255)" json:"full_name"`
	Phone          string    `gorm:"type:varchar(20)" json:"phone"`
	PasswordHash   string    `gorm:"type:varchar(255);not null" json:"-"`
}

// UserRole assigns a role to a user. A pair is unique among live rows.
type UserRole struct {
	Base
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_roles_live,where:is_deleted = false" json:"user_id"`
	RoleID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_roles_live,where:is_deleted = false;index" json:"role_id"`
}
