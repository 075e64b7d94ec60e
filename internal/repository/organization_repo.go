package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orgadmin/internal/model"
)

type OrganizationRepository interface {
	Create(ctx context.Context, org *model.Organization) error
	Update(ctx context.Context, org *model.Organization) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Organization, error)
	FindByIDIncludingDeleted(ctx context.Context, id uuid.UUID) (*model.Organization, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Organization, error)
	// List returns organizations; when ids is non-empty only those.
	List(ctx context.Context, opts ListOptions, ids []uuid.UUID) ([]model.Organization, int64, error)
	// Children lists direct children; only opts.IncludeDeleted is honoured.
	Children(ctx context.Context, parentID uuid.UUID, opts ListOptions) ([]model.Organization, error)
	// Roots lists organizations without a parent.
	Roots(ctx context.Context) ([]model.Organization, error)
	CountChildren(ctx context.Context, parentID uuid.UUID) (int64, error)
	CountUsers(ctx context.Context, orgID uuid.UUID) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type organizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) OrganizationRepository {
	return &organizationRepository{db: db}
}

func (r *organizationRepository) Create(ctx context.Context, org *model.Organization) error {
	return StageNew(ctx, org)
}

func (r *organizationRepository) Update(ctx context.Context, org *model.Organization) error {
	return StageChanged(ctx, org)
}

func (r *organizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	return findByID[model.Organization](ctx, r.db, id, "organization", false)
}

func (r *organizationRepository) FindByIDIncludingDeleted(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	return findByID[model.Organization](ctx, r.db, id, "organization", true)
}

func (r *organizationRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	var org model.Organization
	err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&org, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err, "organization")
	}
	return &org, nil
}

func (r *organizationRepository) List(ctx context.Context, opts ListOptions, ids []uuid.UUID) ([]model.Organization, int64, error) {
	if len(ids) == 0 {
		return list[model.Organization](ctx, r.db, opts, "organization")
	}
	return list[model.Organization](ctx, r.db, opts, "organization", func(db *gorm.DB) *gorm.DB {
		return db.Where("id IN ?", ids)
	})
}

func (r *organizationRepository) Children(ctx context.Context, parentID uuid.UUID, opts ListOptions) ([]model.Organization, error) {
	var orgs []model.Organization
	if err := opts.scope(GetDB(ctx, r.db)).Where("parent_id = ?", parentID).Order(insertionOrder).Find(&orgs).Error; err != nil {
		return nil, translateError(err, "organization")
	}
	return orgs, nil
}

func (r *organizationRepository) Roots(ctx context.Context) ([]model.Organization, error) {
	var orgs []model.Organization
	if err := GetDB(ctx, r.db).Where("parent_id IS NULL").Order(insertionOrder).Find(&orgs).Error; err != nil {
		return nil, translateError(err, "organization")
	}
	return orgs, nil
}

func (r *organizationRepository) CountChildren(ctx context.Context, parentID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Organization{}).Where("parent_id = ?", parentID).Count(&n).Error
	return n, translateError(err, "organization")
}

func (r *organizationRepository) CountUsers(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.User{}).Where("organization_id = ?", orgID).Count(&n).Error
	return n, translateError(err, "user")
}

func (r *organizationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Organization{}).Count(&n).Error
	return n, translateError(err, "organization")
}
