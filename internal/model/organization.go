package model

import (
	"github.com/google/uuid"
)

// TINLength is the fixed length of a taxpayer identification number.
const TINLength = 10

// Organization is a tenant node. ParentID is a back reference, not ownership:
// deleting a parent never cascades to children.
type Organization struct {
	Base
	FullName    string     `gorm:"type:varchar(255);not null" json:"full_name"`
	ShortName   string     `gorm:"type:varchar(100);not null" json:"short_name"`
	Address     string     `gorm:"type:text;not null" json:"address"`
	ParentID    *uuid.UUID `gorm:"type:uuid;index" json:"parent_id"`
	PhoneNumber string     `gorm:"type:varchar(30);not null" json:"phone_number"`
	TIN         string     `gorm:"column:tin;type:varchar(10);not null" json:"tin"`
	Email       string     `gorm:"type:varchar(255);not null" json:"email"`
	Rekvizit    string     `gorm:"type:text;not null" json:"rekvizit"` // registration document reference
}
