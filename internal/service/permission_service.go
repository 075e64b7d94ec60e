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

type CreatePermissionRequest struct {
	Name  string `json:"name" binding:"required,max=255"`
	Key   string `json:"key" binding:"required,max=100"`
	Group string `json:"group" binding:"max=50"`
}

type UpdatePermissionRequest struct {
	Name    string `json:"name" binding:"required,max=255"`
	Key     string `json:"key" binding:"required,max=100"`
	Group   string `json:"group" binding:"max=50"`
	Version *int64 `json:"version"`
}

type PermissionResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Key   string    `json:"key"`
	Group string    `json:"group"`
	AuditInfo
}

// --- Interface ---

type PermissionService interface {
	ListPermissions(ctx context.Context, q ListQuery) ([]PermissionResponse, int64, error)
	GetPermission(ctx context.Context, id uuid.UUID) (*PermissionResponse, error)
	CreatePermission(ctx context.Context, req CreatePermissionRequest) (*PermissionResponse, error)
	UpdatePermission(ctx context.Context, id uuid.UUID, req UpdatePermissionRequest) (*PermissionResponse, error)
	DeletePermission(ctx context.Context, id uuid.UUID) error
}

type permissionService struct {
	perms repository.PermissionRepository
	tx    repository.TransactionManager
}

func NewPermissionService(perms repository.PermissionRepository, tx repository.TransactionManager) PermissionService {
	return &permissionService{perms: perms, tx: tx}
}

// --- Implementation ---

func (s *permissionService) ListPermissions(ctx context.Context, q ListQuery) ([]PermissionResponse, int64, error) {
	perms, total, err := s.perms.List(ctx, q.options())
	if err != nil {
		return nil, 0, fmt.Errorf("list permissions: %w", err)
	}
	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, total, nil
}

func (s *permissionService) GetPermission(ctx context.Context, id uuid.UUID) (*PermissionResponse, error) {
	p, err := s.perms.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toPermissionResponse(*p)
	return &resp, nil
}

func (s *permissionService) CreatePermission(ctx context.Context, req CreatePermissionRequest) (*PermissionResponse, error) {
	perm := &model.Permission{Name: req.Name, Key: req.Key, Group: groupOrDefault(req.Group)}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureKeyFree(txCtx, req.Key, uuid.Nil); err != nil {
			return err
		}
		return s.perms.Create(txCtx, perm)
	})
	if err != nil {
		return nil, err
	}
	resp := toPermissionResponse(*perm)
	return &resp, nil
}

func (s *permissionService) UpdatePermission(ctx context.Context, id uuid.UUID, req UpdatePermissionRequest) (*PermissionResponse, error) {
	var perm *model.Permission
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if perm, err = s.perms.FindByID(txCtx, id); err != nil {
			return err
		}
		if err := checkVersion(perm.Base, req.Version, "permission"); err != nil {
			return err
		}
		if req.Key != perm.Key {
			if err := s.ensureKeyFree(txCtx, req.Key, perm.ID); err != nil {
				return err
			}
		}
		perm.Name = req.Name
		perm.Key = req.Key
		perm.Group = groupOrDefault(req.Group)
		return s.perms.Update(txCtx, perm)
	})
	if err != nil {
		return nil, err
	}
	resp := toPermissionResponse(*perm)
	return &resp, nil
}

// DeletePermission soft-deletes a permission. Its role grants stay in place
// and grant nothing while it is deleted.
func (s *permissionService) DeletePermission(ctx context.Context, id uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		perm, err := s.perms.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		perm.MarkDeleted()
		return s.perms.Update(txCtx, perm)
	})
}

func (s *permissionService) ensureKeyFree(ctx context.Context, key string, self uuid.UUID) error {
	existing, err := s.perms.FindByKey(ctx, key)
	switch {
	case apperror.KindOf(err) == apperror.KindNotFound:
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return apperror.Conflict("permission key %q already exists", key)
	}
	return nil
}

// --- Helpers ---

func groupOrDefault(g string) string {
	if g == "" {
		return "general"
	}
	return g
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:        p.ID,
		Name:      p.Name,
		Key:       p.Key,
		Group:     p.Group,
		AuditInfo: auditInfo(p.Base),
	}
}
