package service

import (
	"context"

	"github.com/google/uuid"

	"orgadmin/internal/repository"
	"orgadmin/pkg/apperror"
)

// DecisionObserver receives every authorization decision.
type DecisionObserver interface {
	ObserveDecision(permission string, allowed bool)
}

// Authorizer answers permission questions against the live role graph. Every
// call reads the store; nothing is cached between requests.
type Authorizer interface {
	HasPermission(ctx context.Context, userID uuid.UUID, key string) (bool, error)
	// Authorize fails with Forbidden unless the user holds key.
	Authorize(ctx context.Context, userID uuid.UUID, key string) error
	// AuthorizeInOrg additionally requires targetOrgID to be the principal's
	// organization or one of its descendants.
	AuthorizeInOrg(ctx context.Context, principal Principal, key string, targetOrgID uuid.UUID) error
	// CheckScope fails with Forbidden unless targetOrgID is within the
	// principal's organization subtree.
	CheckScope(ctx context.Context, principal Principal, targetOrgID uuid.UUID) error
	Permissions(ctx context.Context, userID uuid.UUID) ([]string, error)
	// CheckGrantable fails with Forbidden unless the user already holds every
	// permission the given roles grant.
	CheckGrantable(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error
}

type authorizer struct {
	perms    repository.PermissionRepository
	orgs     OrganizationService
	observer DecisionObserver
}

// NewAuthorizer builds an Authorizer. observer may be nil.
func NewAuthorizer(perms repository.PermissionRepository, orgs OrganizationService, observer DecisionObserver) Authorizer {
	return &authorizer{perms: perms, orgs: orgs, observer: observer}
}

func (a *authorizer) HasPermission(ctx context.Context, userID uuid.UUID, key string) (bool, error) {
	ok, err := a.perms.UserHasKey(ctx, userID, key)
	if err != nil {
		return false, err
	}
	if a.observer != nil {
		a.observer.ObserveDecision(key, ok)
	}
	return ok, nil
}

func (a *authorizer) Authorize(ctx context.Context, userID uuid.UUID, key string) error {
	ok, err := a.HasPermission(ctx, userID, key)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Forbidden("missing permission %q", key)
	}
	return nil
}

func (a *authorizer) AuthorizeInOrg(ctx context.Context, principal Principal, key string, targetOrgID uuid.UUID) error {
	if err := a.Authorize(ctx, principal.UserID, key); err != nil {
		return err
	}
	return a.CheckScope(ctx, principal, targetOrgID)
}

func (a *authorizer) CheckScope(ctx context.Context, principal Principal, targetOrgID uuid.UUID) error {
	ok, err := a.orgs.InScope(ctx, principal.OrganizationID, targetOrgID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Forbidden("organization %s is outside the caller's scope", targetOrgID)
	}
	return nil
}

func (a *authorizer) Permissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return a.perms.KeysForUser(ctx, userID)
}

func (a *authorizer) CheckGrantable(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	if len(roleIDs) == 0 {
		return nil
	}
	granted, err := a.perms.KeysForRoles(ctx, roleIDs)
	if err != nil {
		return err
	}
	held, err := a.perms.KeysForUser(ctx, userID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(held))
	for _, k := range held {
		have[k] = true
	}
	for _, k := range granted {
		if !have[k] {
			return apperror.Forbidden("cannot grant a role carrying %q, which the caller does not hold", k)
		}
	}
	return nil
}
