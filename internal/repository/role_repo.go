package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"orgadmin/internal/database"
	"orgadmin/internal/model"
)

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	Update(ctx context.Context, role *model.Role) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	FindByIDIncludingDeleted(ctx context.Context, id uuid.UUID) (*model.Role, error)
	FindByKey(ctx context.Context, key string) (*model.Role, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Role, error)
	List(ctx context.Context, opts ListOptions) ([]model.Role, int64, error)
	// Permissions lists the live permissions granted by a role.
	Permissions(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error)
	// Grants lists the live role/permission association rows of a role.
	Grants(ctx context.Context, roleID uuid.UUID) ([]model.RolePermission, error)
	AddGrant(ctx context.Context, grant *model.RolePermission) error
	RevokeGrant(ctx context.Context, grant *model.RolePermission) error
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return StageNew(ctx, role)
}

func (r *roleRepository) Update(ctx context.Context, role *model.Role) error {
	return StageChanged(ctx, role)
}

func (r *roleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	return findByID[model.Role](ctx, r.db, id, "role", false)
}

func (r *roleRepository) FindByIDIncludingDeleted(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	return findByID[model.Role](ctx, r.db, id, "role", true)
}

func (r *roleRepository) FindByKey(ctx context.Context, key string) (*model.Role, error) {
	return findBy[model.Role](ctx, r.db, "role", "key = ?", key)
}

func (r *roleRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Role, error) {
	var roles []model.Role
	if len(ids) == 0 {
		return roles, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Order(insertionOrder).Find(&roles).Error; err != nil {
		return nil, translateError(err, "role")
	}
	return roles, nil
}

func (r *roleRepository) List(ctx context.Context, opts ListOptions) ([]model.Role, int64, error) {
	return list[model.Role](ctx, r.db, opts, "role")
}

func (r *roleRepository) Permissions(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error) {
	var perms []model.Permission
	err := GetDB(ctx, r.db).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id AND role_permissions.is_deleted = ?", false).
		Where("role_permissions.role_id = ?", roleID).
		Order("permissions.created_at asc, permissions.id asc").
		Find(&perms).Error
	if err != nil {
		return nil, translateError(err, "permission")
	}
	return perms, nil
}

func (r *roleRepository) Grants(ctx context.Context, roleID uuid.UUID) ([]model.RolePermission, error) {
	var grants []model.RolePermission
	if err := GetDB(ctx, r.db).Where("role_id = ?", roleID).Order(insertionOrder).Find(&grants).Error; err != nil {
		return nil, translateError(err, "role permission")
	}
	return grants, nil
}

func (r *roleRepository) AddGrant(ctx context.Context, grant *model.RolePermission) error {
	return StageNew(ctx, grant)
}

func (r *roleRepository) RevokeGrant(ctx context.Context, grant *model.RolePermission) error {
	grant.MarkDeleted()
	return StageChanged(ctx, grant)
}

// CountGrants counts association rows for a role, deleted ones included.
// Used by tests and recovery tooling to confirm nothing is physically removed.
func CountGrants(ctx context.Context, db *gorm.DB, roleID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, db).Scopes(database.IncludeDeleted).
		Model(&model.RolePermission{}).Where("role_id = ?", roleID).Count(&n).Error
	return n, translateError(err, "role permission")
}
