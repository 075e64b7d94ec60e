package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"orgadmin/internal/audit"
	"orgadmin/internal/model"
)

type AuditFilter struct {
	Entity   string
	EntityID *uuid.UUID
	ActorID  *uuid.UUID
	// Organizations restricts the trail to rows owned by these tenants; nil
	// means no restriction.
	Organizations []uuid.UUID
	// Unowned also admits rows without a tenant when Organizations is set.
	Unowned bool
}

type AuditRepository interface {
	List(ctx context.Context, filter AuditFilter, page, limit int) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

// appendAuditLog writes the trail rows for a flush inside its transaction.
func appendAuditLog(tx *gorm.DB, changes []audit.Change) error {
	if len(changes) == 0 {
		return nil
	}
	logs := make([]model.AuditLog, 0, len(changes))
	for _, c := range changes {
		logs = append(logs, model.AuditLog{
			ID:             model.NewID(),
			ActorID:        c.Actor,
			Action:         c.Kind,
			Entity:         c.Entity,
			EntityID:       c.ID,
			OrganizationID: c.Organization,
			At:             c.At,
		})
	}
	return translateError(tx.Create(&logs).Error, "audit log")
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter, page, limit int) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	scope := func(db *gorm.DB) *gorm.DB {
		if filter.Entity != "" {
			db = db.Where("entity = ?", filter.Entity)
		}
		if filter.EntityID != nil {
			db = db.Where("entity_id = ?", *filter.EntityID)
		}
		if filter.ActorID != nil {
			db = db.Where("actor_id = ?", *filter.ActorID)
		}
		switch {
		case filter.Organizations == nil:
		case filter.Unowned:
			db = db.Where("(organization_id IN ? OR organization_id IS NULL)", filter.Organizations)
		default:
			db = db.Where("organization_id IN ?", filter.Organizations)
		}
		return db
	}

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.AuditLog{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "audit log")
	}

	offset := (page - 1) * limit
	if err := db.Scopes(scope).Order("at desc, id desc").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, translateError(err, "audit log")
	}
	return logs, total, nil
}
