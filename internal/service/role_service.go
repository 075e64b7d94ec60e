package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"orgadmin/internal/model"
	"orgadmin/internal/repository"
	"orgadmin/pkg/apperror"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name          string      `json:"name" binding:"required,max=100"`
	Key           string      `json:"key" binding:"required,max=100"`
	Description   string      `json:"description"`
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

// UpdateRoleRequest replaces the role's fields and its whole permission set.
type UpdateRoleRequest struct {
	Name          string      `json:"name" binding:"required,max=100"`
	Key           string      `json:"key" binding:"required,max=100"`
	Description   string      `json:"description"`
	PermissionIDs []uuid.UUID `json:"permission_ids" binding:"required"`
	Version       *int64      `json:"version"`
}

type RoleResponse struct {
	ID          uuid.UUID            `json:"id"`
	Name        string               `json:"name"`
	Key         string               `json:"key"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions,omitempty"`
	AuditInfo
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context, q ListQuery) ([]RoleResponse, int64, error)
	GetRole(ctx context.Context, id uuid.UUID) (*RoleResponse, error)
	GetRolePermissions(ctx context.Context, id uuid.UUID) ([]PermissionResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id uuid.UUID, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	RestoreRole(ctx context.Context, id uuid.UUID) (*RoleResponse, error)
}

type roleService struct {
	roles repository.RoleRepository
	perms repository.PermissionRepository
	tx    repository.TransactionManager
}

func NewRoleService(roles repository.RoleRepository, perms repository.PermissionRepository, tx repository.TransactionManager) RoleService {
	return &roleService{roles: roles, perms: perms, tx: tx}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context, q ListQuery) ([]RoleResponse, int64, error) {
	roles, total, err := s.roles.List(ctx, q.options())
	if err != nil {
		return nil, 0, fmt.Errorf("list roles: %w", err)
	}
	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r, nil))
	}
	return res, total, nil
}

func (s *roleService) GetRole(ctx context.Context, id uuid.UUID) (*RoleResponse, error) {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	perms, err := s.roles.Permissions(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toRoleResponse(*role, perms)
	return &resp, nil
}

func (s *roleService) GetRolePermissions(ctx context.Context, id uuid.UUID) ([]PermissionResponse, error) {
	if _, err := s.roles.FindByID(ctx, id); err != nil {
		return nil, err
	}
	perms, err := s.roles.Permissions(ctx, id)
	if err != nil {
		return nil, err
	}
	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

// CreateRole creates the role and its grants in one unit of work. Every
// permission id must name a live permission.
func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error) {
	role := &model.Role{Name: req.Name, Key: req.Key, Description: req.Description}
	var perms []model.Permission

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureKeyFree(txCtx, req.Key, uuid.Nil); err != nil {
			return err
		}
		var err error
		if perms, err = s.livePermissions(txCtx, req.PermissionIDs); err != nil {
			return err
		}
		if err := s.roles.Create(txCtx, role); err != nil {
			return err
		}
		for _, p := range perms {
			if err := s.roles.AddGrant(txCtx, &model.RolePermission{RoleID: role.ID, PermissionID: p.ID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp := toRoleResponse(*role, perms)
	return &resp, nil
}

// UpdateRole rewrites the role and diffs its grants against PermissionIDs:
// missing pairs are added, unlisted pairs are soft-deleted. On any failure the
// previous grant set is left untouched.
func (s *roleService) UpdateRole(ctx context.Context, id uuid.UUID, req UpdateRoleRequest) (*RoleResponse, error) {
	var (
		role  *model.Role
		perms []model.Permission
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if role, err = s.roles.FindByID(txCtx, id); err != nil {
			return err
		}
		if err := checkVersion(role.Base, req.Version, "role"); err != nil {
			return err
		}
		if req.Key != role.Key {
			if role.IsSystem {
				return apperror.Conflict("system role %q cannot change its key", role.Key)
			}
			if err := s.ensureKeyFree(txCtx, req.Key, role.ID); err != nil {
				return err
			}
		}
		if perms, err = s.livePermissions(txCtx, req.PermissionIDs); err != nil {
			return err
		}

		role.Name = req.Name
		role.Key = req.Key
		role.Description = req.Description
		if err := s.roles.Update(txCtx, role); err != nil {
			return err
		}
		return s.replaceGrants(txCtx, role.ID, perms)
	})
	if err != nil {
		return nil, err
	}
	resp := toRoleResponse(*role, perms)
	return &resp, nil
}

func (s *roleService) replaceGrants(ctx context.Context, roleID uuid.UUID, perms []model.Permission) error {
	current, err := s.roles.Grants(ctx, roleID)
	if err != nil {
		return err
	}
	want := make(map[uuid.UUID]bool, len(perms))
	for _, p := range perms {
		want[p.ID] = true
	}
	have := make(map[uuid.UUID]bool, len(current))
	for i := range current {
		g := &current[i]
		have[g.PermissionID] = true
		if !want[g.PermissionID] {
			if err := s.roles.RevokeGrant(ctx, g); err != nil {
				return err
			}
		}
	}
	for _, p := range perms {
		if !have[p.ID] {
			if err := s.roles.AddGrant(ctx, &model.RolePermission{RoleID: roleID, PermissionID: p.ID}); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteRole soft-deletes the role. Users keep their assignment rows, which
// grant nothing while the role is deleted.
func (s *roleService) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roles.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return apperror.Conflict("cannot delete system role %q", role.Key)
		}
		role.MarkDeleted()
		return s.roles.Update(txCtx, role)
	})
}

func (s *roleService) RestoreRole(ctx context.Context, id uuid.UUID) (*RoleResponse, error) {
	var role *model.Role
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if role, err = s.roles.FindByIDIncludingDeleted(txCtx, id); err != nil {
			return err
		}
		if !role.IsDeleted {
			return nil
		}
		if err := s.ensureKeyFree(txCtx, role.Key, role.ID); err != nil {
			return err
		}
		role.Restore()
		return s.roles.Update(txCtx, role)
	})
	if err != nil {
		return nil, err
	}
	return s.GetRole(ctx, role.ID)
}

func (s *roleService) livePermissions(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error) {
	ids = uniqueIDs(ids)
	perms, err := s.perms.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(ids, perms); len(missing) > 0 {
		return nil, apperror.Validation("unknown permission id %s", missing[0])
	}
	return perms, nil
}

func (s *roleService) ensureKeyFree(ctx context.Context, key string, self uuid.UUID) error {
	existing, err := s.roles.FindByKey(ctx, key)
	switch {
	case apperror.KindOf(err) == apperror.KindNotFound:
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return apperror.Conflict("role key %q already exists", key)
	}
	return nil
}

// --- Helpers ---

func toRoleResponse(r model.Role, perms []model.Permission) RoleResponse {
	resp := RoleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Key:         r.Key,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		AuditInfo:   auditInfo(r.Base),
	}
	if perms != nil {
		resp.Permissions = make([]PermissionResponse, 0, len(perms))
		for _, p := range perms {
			resp.Permissions = append(resp.Permissions, toPermissionResponse(p))
		}
	}
	return resp
}
