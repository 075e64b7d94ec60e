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

type CreateOrganizationRequest struct {
	FullName    string     `json:"full_name" binding:"required,max=255"`
	ShortName   string     `json:"short_name" binding:"required,max=100"`
	Address     string     `json:"address" binding:"required"`
	ParentID    *uuid.UUID `json:"parent_id"`
	PhoneNumber string     `json:"phone_number" binding:"required,max=30"`
	TIN         string     `json:"tin" binding:"required,tin"`
	Email       string     `json:"email" binding:"required,email"`
	Rekvizit    string     `json:"rekvizit" binding:"required"`
}

// UpdateOrganizationRequest changes descriptive fields. Parent changes go
// through SetParent.
type UpdateOrganizationRequest struct {
	FullName    string `json:"full_name" binding:"required,max=255"`
	ShortName   string `json:"short_name" binding:"required,max=100"`
	Address     string `json:"address" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required,max=30"`
	TIN         string `json:"tin" binding:"required,tin"`
	Email       string `json:"email" binding:"required,email"`
	Rekvizit    string `json:"rekvizit" binding:"required"`
	Version     *int64 `json:"version"`
}

type SetParentRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
}

type OrganizationResponse struct {
	ID          uuid.UUID  `json:"id"`
	FullName    string     `json:"full_name"`
	ShortName   string     `json:"short_name"`
	Address     string     `json:"address"`
	ParentID    *uuid.UUID `json:"parent_id"`
	PhoneNumber string     `json:"phone_number"`
	TIN         string     `json:"tin"`
	Email       string     `json:"email"`
	Rekvizit    string     `json:"rekvizit"`
	AuditInfo
}

// --- Interface ---

type OrganizationService interface {
	// ListOrganizations lists the given organizations, or all when scope is empty.
	ListOrganizations(ctx context.Context, q ListQuery, scope []uuid.UUID) ([]OrganizationResponse, int64, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (*OrganizationResponse, error)
	CreateOrganization(ctx context.Context, req CreateOrganizationRequest) (*OrganizationResponse, error)
	UpdateOrganization(ctx context.Context, id uuid.UUID, req UpdateOrganizationRequest) (*OrganizationResponse, error)
	DeleteOrganization(ctx context.Context, id uuid.UUID) error
	// SetParent re-parents orgID under parentID (nil makes it a root). It fails
	// with Conflict if parentID is orgID or one of its descendants.
	SetParent(ctx context.Context, orgID uuid.UUID, parentID *uuid.UUID) (*OrganizationResponse, error)
	// LoadParent returns the live parent of org, or nil for a root.
	LoadParent(ctx context.Context, org *model.Organization) (*model.Organization, error)
	// Ancestors lists the parent chain of orgID, nearest first, up to the root.
	Ancestors(ctx context.Context, orgID uuid.UUID) ([]OrganizationResponse, error)
	// AncestorsWithin lists the parent chain of orgID up to and including
	// topID, which must lie on it. The chain of topID itself is empty.
	AncestorsWithin(ctx context.Context, orgID, topID uuid.UUID) ([]OrganizationResponse, error)
	Children(ctx context.Context, orgID uuid.UUID) ([]OrganizationResponse, error)
	Descendants(ctx context.Context, orgID uuid.UUID) ([]OrganizationResponse, error)
	// VisibleIDs is the scope of an actor in orgID: the organization itself
	// and all its descendants, never ancestors or siblings. With
	// includeDeleted the walk also enters soft-deleted organizations.
	VisibleIDs(ctx context.Context, orgID uuid.UUID, includeDeleted bool) ([]uuid.UUID, error)
	// InScope reports whether target is actorOrg or lies below it. Deleted
	// organizations keep their place in the tree.
	InScope(ctx context.Context, actorOrgID, targetOrgID uuid.UUID) (bool, error)
	IsRoot(ctx context.Context, orgID uuid.UUID) (bool, error)
}

type organizationService struct {
	orgs repository.OrganizationRepository
	tx   repository.TransactionManager
}

func NewOrganizationService(orgs repository.OrganizationRepository, tx repository.TransactionManager) OrganizationService {
	return &organizationService{orgs: orgs, tx: tx}
}

// --- Implementation ---

func (s *organizationService) ListOrganizations(ctx context.Context, q ListQuery, scope []uuid.UUID) ([]OrganizationResponse, int64, error) {
	orgs, total, err := s.orgs.List(ctx, q.options(), scope)
	if err != nil {
		return nil, 0, fmt.Errorf("list organizations: %w", err)
	}
	return toOrganizationResponses(orgs), total, nil
}

func (s *organizationService) GetOrganization(ctx context.Context, id uuid.UUID) (*OrganizationResponse, error) {
	org, err := s.orgs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toOrganizationResponse(*org)
	return &resp, nil
}

func (s *organizationService) CreateOrganization(ctx context.Context, req CreateOrganizationRequest) (*OrganizationResponse, error) {
	org := &model.Organization{
		FullName:    req.FullName,
		ShortName:   req.ShortName,
		Address:     req.Address,
		ParentID:    req.ParentID,
		PhoneNumber: req.PhoneNumber,
		TIN:         req.TIN,
		Email:       req.Email,
		Rekvizit:    req.Rekvizit,
	}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if req.ParentID != nil {
			// locked so the parent cannot be deleted before this commits
			if _, err := s.orgs.FindByIDForUpdate(txCtx, *req.ParentID); err != nil {
				return parentError(err, *req.ParentID)
			}
		}
		return s.orgs.Create(txCtx, org)
	})
	if err != nil {
		return nil, err
	}
	resp := toOrganizationResponse(*org)
	return &resp, nil
}

func (s *organizationService) UpdateOrganization(ctx context.Context, id uuid.UUID, req UpdateOrganizationRequest) (*OrganizationResponse, error) {
	var org *model.Organization
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if org, err = s.orgs.FindByIDForUpdate(txCtx, id); err != nil {
			return err
		}
		if err := checkVersion(org.Base, req.Version, "organization"); err != nil {
			return err
		}
		org.FullName = req.FullName
		org.ShortName = req.ShortName
		org.Address = req.Address
		org.PhoneNumber = req.PhoneNumber
		org.TIN = req.TIN
		org.Email = req.Email
		org.Rekvizit = req.Rekvizit
		return s.orgs.Update(txCtx, org)
	})
	if err != nil {
		return nil, err
	}
	resp := toOrganizationResponse(*org)
	return &resp, nil
}

// DeleteOrganization soft-deletes an organization that has no live children
// and no live users. Nothing cascades.
func (s *organizationService) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		org, err := s.orgs.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		children, err := s.orgs.CountChildren(txCtx, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return apperror.Conflict("organization %s has %d live child organizations; re-parent or delete them first", id, children)
		}
		users, err := s.orgs.CountUsers(txCtx, id)
		if err != nil {
			return err
		}
		if users > 0 {
			return apperror.Conflict("organization %s has %d live users; move or delete them first", id, users)
		}
		org.MarkDeleted()
		return s.orgs.Update(txCtx, org)
	})
}

// SetParent walks the new parent's ancestor chain inside the same transaction
// as the write, locking each row it visits, so two concurrent re-parentings
// cannot jointly close a cycle.
func (s *organizationService) SetParent(ctx context.Context, orgID uuid.UUID, parentID *uuid.UUID) (*OrganizationResponse, error) {
	var org *model.Organization
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if org, err = s.orgs.FindByIDForUpdate(txCtx, orgID); err != nil {
			return err
		}
		if parentID != nil {
			if err := s.checkAcyclic(txCtx, orgID, *parentID); err != nil {
				return err
			}
		}
		if sameParent(org.ParentID, parentID) {
			return nil
		}
		org.ParentID = parentID
		return s.orgs.Update(txCtx, org)
	})
	if err != nil {
		return nil, err
	}
	resp := toOrganizationResponse(*org)
	return &resp, nil
}

func (s *organizationService) checkAcyclic(ctx context.Context, orgID, parentID uuid.UUID) error {
	if parentID == orgID {
		return apperror.Conflict("organization %s cannot be its own parent", orgID)
	}
	limit, err := s.orgs.Count(ctx)
	if err != nil {
		return err
	}
	cursor := &parentID
	for steps := int64(0); cursor != nil; steps++ {
		if steps > limit {
			return apperror.Conflict("organization hierarchy above %s already contains a cycle", parentID)
		}
		node, err := s.orgs.FindByIDForUpdate(ctx, *cursor)
		if err != nil {
			if *cursor == parentID {
				return parentError(err, parentID)
			}
			return err
		}
		if node.ID == orgID {
			return apperror.Conflict("organization %s is an ancestor of %s; re-parenting would create a cycle", orgID, parentID)
		}
		cursor = node.ParentID
	}
	return nil
}

func (s *organizationService) LoadParent(ctx context.Context, org *model.Organization) (*model.Organization, error) {
	if org.ParentID == nil {
		return nil, nil
	}
	parent, err := s.orgs.FindByID(ctx, *org.ParentID)
	if apperror.KindOf(err) == apperror.KindNotFound {
		// a deleted parent reads as no parent
		return nil, nil
	}
	return parent, err
}

func (s *organizationService) Ancestors(ctx context.Context, orgID uuid.UUID) ([]OrganizationResponse, error) {
	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	limit, err := s.orgs.Count(ctx)
	if err != nil {
		return nil, err
	}
	var chain []model.Organization
	for steps := int64(0); ; steps++ {
		if steps > limit {
			return nil, apperror.Conflict("organization hierarchy above %s contains a cycle", orgID)
		}
		parent, err := s.LoadParent(ctx, org)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		chain = append(chain, *parent)
		org = parent
	}
	return toOrganizationResponses(chain), nil
}

func (s *organizationService) AncestorsWithin(ctx context.Context, orgID, topID uuid.UUID) ([]OrganizationResponse, error) {
	if orgID == topID {
		if _, err := s.orgs.FindByID(ctx, orgID); err != nil {
			return nil, err
		}
		return []OrganizationResponse{}, nil
	}
	chain, err := s.Ancestors(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for i, a := range chain {
		if a.ID == topID {
			return chain[:i+1], nil
		}
	}
	return nil, apperror.Forbidden("organization %s is outside the caller's scope", orgID)
}

func (s *organizationService) Children(ctx context.Context, orgID uuid.UUID) ([]OrganizationResponse, error) {
	if _, err := s.orgs.FindByID(ctx, orgID); err != nil {
		return nil, err
	}
	children, err := s.orgs.Children(ctx, orgID, repository.ListOptions{})
	if err != nil {
		return nil, err
	}
	return toOrganizationResponses(children), nil
}

func (s *organizationService) Descendants(ctx context.Context, orgID uuid.UUID) ([]OrganizationResponse, error) {
	if _, err := s.orgs.FindByID(ctx, orgID); err != nil {
		return nil, err
	}
	orgs, err := s.descendants(ctx, orgID, repository.ListOptions{})
	if err != nil {
		return nil, err
	}
	return toOrganizationResponses(orgs), nil
}

// descendants walks the tree breadth first. The visited set bounds the walk
// even if the stored hierarchy were corrupted.
func (s *organizationService) descendants(ctx context.Context, rootID uuid.UUID, opts repository.ListOptions) ([]model.Organization, error) {
	visited := map[uuid.UUID]bool{rootID: true}
	queue := []uuid.UUID{rootID}
	var out []model.Organization
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := s.orgs.Children(ctx, id, opts)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if visited[c.ID] {
				continue
			}
			visited[c.ID] = true
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}

func (s *organizationService) VisibleIDs(ctx context.Context, orgID uuid.UUID, includeDeleted bool) ([]uuid.UUID, error) {
	orgs, err := s.descendants(ctx, orgID, repository.ListOptions{IncludeDeleted: includeDeleted})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(orgs)+1)
	ids = append(ids, orgID)
	for _, o := range orgs {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// InScope walks up from target through live and deleted rows alike. A live
// organization only ever has live ancestors, so the answer for it matches
// the live tree.
func (s *organizationService) InScope(ctx context.Context, actorOrgID, targetOrgID uuid.UUID) (bool, error) {
	if actorOrgID == targetOrgID {
		return true, nil
	}
	node, err := s.orgs.FindByIDIncludingDeleted(ctx, targetOrgID)
	if err != nil {
		return false, err
	}
	visited := map[uuid.UUID]bool{node.ID: true}
	for node.ParentID != nil {
		if *node.ParentID == actorOrgID {
			return true, nil
		}
		if visited[*node.ParentID] {
			return false, apperror.Conflict("organization hierarchy above %s contains a cycle", targetOrgID)
		}
		visited[*node.ParentID] = true
		if node, err = s.orgs.FindByIDIncludingDeleted(ctx, *node.ParentID); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (s *organizationService) IsRoot(ctx context.Context, orgID uuid.UUID) (bool, error) {
	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		return false, err
	}
	return org.ParentID == nil, nil
}

// --- Helpers ---

func parentError(err error, parentID uuid.UUID) error {
	if apperror.KindOf(err) == apperror.KindNotFound {
		return apperror.Validation("parent organization %s does not exist", parentID)
	}
	return err
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func toOrganizationResponse(o model.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:          o.ID,
		FullName:    o.FullName,
		ShortName:   o.ShortName,
		Address:     o.Address,
		ParentID:    o.ParentID,
		PhoneNumber: o.PhoneNumber,
		TIN:         o.TIN,
		Email:       o.Email,
		Rekvizit:    o.Rekvizit,
		AuditInfo:   auditInfo(o.Base),
	}
}

func toOrganizationResponses(orgs []model.Organization) []OrganizationResponse {
	res := make([]OrganizationResponse, 0, len(orgs))
	for _, o := range orgs {
		res = append(res, toOrganizationResponse(o))
	}
	return res
}
