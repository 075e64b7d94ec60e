package model

import (
	"time"

	"github.com/google/uuid"
)

// Token is an issued access/refresh pair. Logout, refresh and expiry soft-delete it.
type Token struct {
	Base
	UserID           uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	AccessToken      string    `gorm:"type:text;not null" json:"-"`
	AccessExpiresAt  time.Time `gorm:"not null" json:"access_expires_at"`
	RefreshToken     string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`
	RefreshExpiresAt time.Time `gorm:"not null;index" json:"refresh_expires_at"`
}
