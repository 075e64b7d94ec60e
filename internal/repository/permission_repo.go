package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"orgadmin/internal/model"
)

type PermissionRepository interface {
	Create(ctx context.Context, perm *model.Permission) error
	Update(ctx context.Context, perm *model.Permission) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error)
	FindByKey(ctx context.Context, key string) (*model.Permission, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error)
	List(ctx context.Context, opts ListOptions) ([]model.Permission, int64, error)
	// KeysForUser returns the effective permission keys of a user: the union
	// over the user's live role assignments of each live role's live permissions.
	KeysForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
	UserHasKey(ctx context.Context, userID uuid.UUID, key string) (bool, error)
	// KeysForRoles returns the live permission keys granted by the given live roles.
	KeysForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]string, error)
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Create(ctx context.Context, perm *model.Permission) error {
	return StageNew(ctx, perm)
}

func (r *permissionRepository) Update(ctx context.Context, perm *model.Permission) error {
	return StageChanged(ctx, perm)
}

func (r *permissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error) {
	return findByID[model.Permission](ctx, r.db, id, "permission", false)
}

func (r *permissionRepository) FindByKey(ctx context.Context, key string) (*model.Permission, error) {
	return findBy[model.Permission](ctx, r.db, "permission", "key = ?", key)
}

func (r *permissionRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error) {
	var perms []model.Permission
	if len(ids) == 0 {
		return perms, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Order(insertionOrder).Find(&perms).Error; err != nil {
		return nil, translateError(err, "permission")
	}
	return perms, nil
}

func (r *permissionRepository) List(ctx context.Context, opts ListOptions) ([]model.Permission, int64, error) {
	return list[model.Permission](ctx, r.db, opts, "permission")
}

// grantedTo joins permissions to a user through live associations only. The
// permissions table itself is filtered by the soft-delete callback.
func grantedTo(userID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id AND role_permissions.is_deleted = ?", false).
			Joins("JOIN roles ON roles.id = role_permissions.role_id AND roles.is_deleted = ?", false).
			Joins("JOIN user_roles ON user_roles.role_id = roles.id AND user_roles.is_deleted = ?", false).
			Joins("JOIN users ON users.id = user_roles.user_id AND users.is_deleted = ?", false).
			Where("users.id = ?", userID)
	}
}

func (r *permissionRepository) KeysForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	keys := []string{}
	err := GetDB(ctx, r.db).
		Model(&model.Permission{}).
		Scopes(grantedTo(userID)).
		Distinct().
		Order("permissions.key asc").
		Pluck("permissions.key", &keys).Error
	if err != nil {
		return nil, translateError(err, "permission")
	}
	return keys, nil
}

func (r *permissionRepository) UserHasKey(ctx context.Context, userID uuid.UUID, key string) (bool, error) {
	var n int64
	err := GetDB(ctx, r.db).
		Model(&model.Permission{}).
		Scopes(grantedTo(userID)).
		Where("permissions.key = ?", key).
		Count(&n).Error
	if err != nil {
		return false, translateError(err, "permission")
	}
	return n > 0, nil
}

func (r *permissionRepository) KeysForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	keys := []string{}
	if len(roleIDs) == 0 {
		return keys, nil
	}
	err := GetDB(ctx, r.db).
		Model(&model.Permission{}).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id AND role_permissions.is_deleted = ?", false).
		Joins("JOIN roles ON roles.id = role_permissions.role_id AND roles.is_deleted = ?", false).
		Where("roles.id IN ?", roleIDs).
		Distinct().
		Order("permissions.key asc").
		Pluck("permissions.key", &keys).Error
	if err != nil {
		return nil, translateError(err, "permission")
	}
	return keys, nil
}
