package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"orgadmin/internal/model"
	"orgadmin/internal/repository"
	"orgadmin/pkg/apperror"
)

// DTOs for Request validation
type CreateUserRequest struct {
	OrganizationID uuid.UUID   `json:"organization_id" binding:"required"`
	Username       string      `json:"username" binding:"required,max=255"`
	Email          string      `json:"email" binding:"required,email"`
	FullName       string      `json:"full_name" binding:"max=255"`
	Phone          string      `json:"phone" binding:"max=20"`
	Password       string      `json:"password" binding:"required,min=6"`
	RoleIDs        []uuid.UUID `json:"role_ids"`
}

type UpdateUserRequest struct {
	OrganizationID *uuid.UUID `json:"organization_id"`
	Username       string     `json:"username" binding:"omitempty,max=255"`
	Email          string     `json:"email" binding:"omitempty,email"`
	FullName       *string    `json:"full_name"`
	Phone          *string    `json:"phone"`
	Password       string     `json:"password" binding:"omitempty,min=6"`
	Version        *int64     `json:"version"`
}

type AssignRolesRequest struct {
	RoleIDs []uuid.UUID `json:"role_ids" binding:"required"`
}

// UserResponse never carries the password hash.
type UserResponse struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	Username       string         `json:"username"`
	Email          string         `json:"email"`
	FullName       string         `json:"full_name"`
	Phone          string         `json:"phone"`
	Roles          []RoleResponse `json:"roles,omitempty"`
	AuditInfo
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error)
	// ListUsers lists users of the given organizations, or all users when
	// orgIDs is empty.
	ListUsers(ctx context.Context, q ListQuery, orgIDs []uuid.UUID) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	// AssignRoles replaces the user's live role set.
	AssignRoles(ctx context.Context, id uuid.UUID, roleIDs []uuid.UUID) (*UserResponse, error)
	GetUserRoles(ctx context.Context, id uuid.UUID) ([]RoleResponse, error)
	// GetUserPermissions returns the user's effective permission keys.
	GetUserPermissions(ctx context.Context, id uuid.UUID) ([]string, error)
}

type userService struct {
	users  repository.UserRepository
	roles  repository.RoleRepository
	perms  repository.PermissionRepository
	orgs   repository.OrganizationRepository
	tokens repository.TokenRepository
	tx     repository.TransactionManager
}

// NewUserService returns a new instance of UserService
func NewUserService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	orgs repository.OrganizationRepository,
	tokens repository.TokenRepository,
	tx repository.TransactionManager,
) UserService {
	return &userService{users: users, roles: roles, perms: perms, orgs: orgs, tokens: tokens, tx: tx}
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		OrganizationID: req.OrganizationID,
		Username:       req.Username,
		Email:          req.Email,
		FullName:       req.FullName,
		Phone:          req.Phone,
		PasswordHash:   hash,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureOrganization(txCtx, req.OrganizationID); err != nil {
			return err
		}
		if err := s.ensureUnique(txCtx, req.Username, req.Email, uuid.Nil); err != nil {
			return err
		}
		if err := s.users.Create(txCtx, user); err != nil {
			return err
		}
		return s.replaceRoles(txCtx, user.ID, req.RoleIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, user.ID)
}

func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	roles, err := s.users.Roles(ctx, id)
	if err != nil {
		return nil, err
	}
	return mapToResponse(user, roles), nil
}

func (s *userService) ListUsers(ctx context.Context, q ListQuery, orgIDs []uuid.UUID) ([]UserResponse, int64, error) {
	users, total, err := s.users.List(ctx, q.options(), orgIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	res := make([]UserResponse, 0, len(users))
	for i := range users {
		res = append(res, *mapToResponse(&users[i], nil))
	}
	return res, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error) {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.users.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if err := checkVersion(user.Base, req.Version, "user"); err != nil {
			return err
		}

		if req.OrganizationID != nil && *req.OrganizationID != user.OrganizationID {
			if err := s.ensureOrganization(txCtx, *req.OrganizationID); err != nil {
				return err
			}
			user.OrganizationID = *req.OrganizationID
		}
		username, email := user.Username, user.Email
		if req.Username != "" {
			username = req.Username
		}
		if req.Email != "" {
			email = req.Email
		}
		if username != user.Username || email != user.Email {
			if err := s.ensureUnique(txCtx, changed(username, user.Username), changed(email, user.Email), user.ID); err != nil {
				return err
			}
			user.Username, user.Email = username, email
		}
		if req.FullName != nil {
			user.FullName = *req.FullName
		}
		if req.Phone != nil {
			user.Phone = *req.Phone
		}
		if req.Password != "" {
			hash, err := hashPassword(req.Password)
			if err != nil {
				return err
			}
			user.PasswordHash = hash
		}
		return s.users.Update(txCtx, user)
	})
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

// DeleteUser soft-deletes the user and revokes its live tokens. Role
// assignments stay and grant nothing while the user is deleted.
func (s *userService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.users.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		tokens, err := s.tokens.ListByUser(txCtx, id)
		if err != nil {
			return err
		}
		for i := range tokens {
			tokens[i].MarkDeleted()
			if err := s.tokens.Update(txCtx, &tokens[i]); err != nil {
				return err
			}
		}
		user.MarkDeleted()
		return s.users.Update(txCtx, user)
	})
}

func (s *userService) AssignRoles(ctx context.Context, id uuid.UUID, roleIDs []uuid.UUID) (*UserResponse, error) {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.users.GetByID(txCtx, id); err != nil {
			return err
		}
		return s.replaceRoles(txCtx, id, roleIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *userService) GetUserRoles(ctx context.Context, id uuid.UUID) ([]RoleResponse, error) {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return nil, err
	}
	roles, err := s.users.Roles(ctx, id)
	if err != nil {
		return nil, err
	}
	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r, nil))
	}
	return res, nil
}

func (s *userService) GetUserPermissions(ctx context.Context, id uuid.UUID) ([]string, error) {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.perms.KeysForUser(ctx, id)
}

// replaceRoles makes the live assignments of userID exactly roleIDs: missing
// ones are added, surplus ones soft-deleted, kept ones left untouched.
func (s *userService) replaceRoles(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	want := uniqueIDs(roleIDs)
	roles, err := s.roles.FindByIDs(ctx, want)
	if err != nil {
		return err
	}
	if missing := missingIDs(want, roles); len(missing) > 0 {
		return apperror.Validation("unknown or deleted roles: %v", missing)
	}

	current, err := s.users.Assignments(ctx, userID)
	if err != nil {
		return err
	}
	wanted := make(map[uuid.UUID]bool, len(want))
	for _, id := range want {
		wanted[id] = true
	}
	for i := range current {
		ur := &current[i]
		if wanted[ur.RoleID] {
			delete(wanted, ur.RoleID)
			continue
		}
		if err := s.users.Unassign(ctx, ur); err != nil {
			return err
		}
	}
	for _, id := range want {
		if !wanted[id] {
			continue
		}
		if err := s.users.Assign(ctx, &model.UserRole{UserID: userID, RoleID: id}); err != nil {
			return err
		}
	}
	return nil
}

// ensureOrganization locks the live organization so it cannot be deleted
// before the user placed in it commits.
func (s *userService) ensureOrganization(ctx context.Context, orgID uuid.UUID) error {
	if _, err := s.orgs.FindByIDForUpdate(ctx, orgID); err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return apperror.Validation("organization %s does not exist", orgID)
		}
		return err
	}
	return nil
}

// ensureUnique checks the non-empty username and email against live users
// other than self.
func (s *userService) ensureUnique(ctx context.Context, username, email string, self uuid.UUID) error {
	if username != "" {
		existing, err := s.users.GetByUsername(ctx, username)
		if err := taken(existing, err, self, "username", username); err != nil {
			return err
		}
	}
	if email != "" {
		existing, err := s.users.GetByEmail(ctx, email)
		if err := taken(existing, err, self, "email", email); err != nil {
			return err
		}
	}
	return nil
}

func taken(existing *model.User, err error, self uuid.UUID, field, value string) error {
	switch {
	case apperror.KindOf(err) == apperror.KindNotFound:
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return apperror.Conflict("%s %q already exists", field, value)
	}
	return nil
}

// changed returns next if it differs from prev, else "".
func changed(next, prev string) string {
	if next == prev {
		return ""
	}
	return next
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperror.Internal(fmt.Errorf("hash password: %w", err))
	}
	return string(hashed), nil
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User, roles []model.Role) *UserResponse {
	res := &UserResponse{
		ID:             user.ID,
		OrganizationID: user.OrganizationID,
		Username:       user.Username,
		Email:          user.Email,
		FullName:       user.FullName,
		Phone:          user.Phone,
		AuditInfo:      auditInfo(user.Base),
	}
	for _, r := range roles {
		res.Roles = append(res.Roles, toRoleResponse(r, nil))
	}
	return res
}
