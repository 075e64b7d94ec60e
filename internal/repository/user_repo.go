package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"orgadmin/internal/model"
)

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// List returns users; when orgIDs is non-empty only users of those organizations.
	List(ctx context.Context, opts ListOptions, orgIDs []uuid.UUID) ([]model.User, int64, error)
	// Roles lists the live roles assigned to a user through live assignments.
	Roles(ctx context.Context, userID uuid.UUID) ([]model.Role, error)
	Assignments(ctx context.Context, userID uuid.UUID) ([]model.UserRole, error)
	Assign(ctx context.Context, ur *model.UserRole) error
	Unassign(ctx context.Context, ur *model.UserRole) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return StageNew(ctx, user)
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return StageChanged(ctx, user)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return findByID[model.User](ctx, r.db, id, "user", false)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return findBy[model.User](ctx, r.db, "user", "email = ?", email)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return findBy[model.User](ctx, r.db, "user", "username = ?", username)
}

func (r *userRepository) List(ctx context.Context, opts ListOptions, orgIDs []uuid.UUID) ([]model.User, int64, error) {
	if len(orgIDs) == 0 {
		return list[model.User](ctx, r.db, opts, "user")
	}
	return list[model.User](ctx, r.db, opts, "user", func(db *gorm.DB) *gorm.DB {
		return db.Where("organization_id IN ?", orgIDs)
	})
}

func (r *userRepository) Roles(ctx context.Context, userID uuid.UUID) ([]model.Role, error) {
	var roles []model.Role
	err := GetDB(ctx, r.db).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id AND user_roles.is_deleted = ?", false).
		Where("user_roles.user_id = ?", userID).
		Order("roles.created_at asc, roles.id asc").
		Find(&roles).Error
	if err != nil {
		return nil, translateError(err, "role")
	}
	return roles, nil
}

func (r *userRepository) Assignments(ctx context.Context, userID uuid.UUID) ([]model.UserRole, error) {
	var urs []model.UserRole
	if err := GetDB(ctx, r.db).Where("user_id = ?", userID).Order(insertionOrder).Find(&urs).Error; err != nil {
		return nil, translateError(err, "user role")
	}
	return urs, nil
}

func (r *userRepository) Assign(ctx context.Context, ur *model.UserRole) error {
	return StageNew(ctx, ur)
}

func (r *userRepository) Unassign(ctx context.Context, ur *model.UserRole) error {
	ur.MarkDeleted()
	return StageChanged(ctx, ur)
}
