package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"orgadmin/internal/audit"
	"orgadmin/internal/repository"
	"orgadmin/internal/service"
	"orgadmin/internal/testutil"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time         { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type decisions struct{ allowed, denied int }

func (d *decisions) ObserveDecision(_ string, allowed bool) {
	if allowed {
		d.allowed++
		return
	}
	d.denied++
}

type fixture struct {
	db        *gorm.DB
	clock     *clock
	decisions *decisions
	admin     uuid.UUID
	ctx       context.Context
	tm        repository.TransactionManager

	perms repository.PermissionRepository
	roles repository.RoleRepository
	users repository.UserRepository
	orgs  repository.OrganizationRepository

	permSvc  service.PermissionService
	roleSvc  service.RoleService
	orgSvc   service.OrganizationService
	userSvc  service.UserService
	authSvc  service.AuthService
	authz    service.Authorizer
	auditSvc service.AuditService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(testutil.OpenDB(t))
}

func newFixtureOn(db *gorm.DB) *fixture {
	clk := &clock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	tm := repository.NewTransactionManager(db, repository.WithClock(clk.Now))

	f := &fixture{
		db:        db,
		clock:     clk,
		decisions: &decisions{},
		admin:     uuid.New(),
		tm:        tm,
		perms:     repository.NewPermissionRepository(db),
		roles:     repository.NewRoleRepository(db),
		users:     repository.NewUserRepository(db),
		orgs:      repository.NewOrganizationRepository(db),
	}
	f.ctx = audit.WithActor(context.Background(), f.admin)
	tokens := repository.NewTokenRepository(db)

	f.permSvc = service.NewPermissionService(f.perms, tm)
	f.roleSvc = service.NewRoleService(f.roles, f.perms, tm)
	f.orgSvc = service.NewOrganizationService(f.orgs, tm)
	f.userSvc = service.NewUserService(f.users, f.roles, f.perms, f.orgs, tokens, tm)
	f.authSvc = service.NewAuthService(f.users, tokens, tm, service.AuthSettings{
		Secret:     []byte("test-secret"),
		Issuer:     "orgadmin-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Now:        clk.Now,
	})
	f.authz = service.NewAuthorizer(f.perms, f.orgSvc, f.decisions)
	f.auditSvc = service.NewAuditService(repository.NewAuditRepository(db))
	return f
}

func (f *fixture) permission(t *testing.T, key string) *service.PermissionResponse {
	t.Helper()
	p, err := f.permSvc.CreatePermission(f.ctx, service.CreatePermissionRequest{Name: key, Key: key})
	require.NoError(t, err)
	return p
}

func (f *fixture) role(t *testing.T, key string, perms ...*service.PermissionResponse) *service.RoleResponse {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	r, err := f.roleSvc.CreateRole(f.ctx, service.CreateRoleRequest{Name: key, Key: key, PermissionIDs: ids})
	require.NoError(t, err)
	return r
}

func (f *fixture) org(t *testing.T, name string, parent *uuid.UUID) *service.OrganizationResponse {
	t.Helper()
	o, err := f.orgSvc.CreateOrganization(f.ctx, orgRequest(name, parent))
	require.NoError(t, err)
	return o
}

func orgRequest(name string, parent *uuid.UUID) service.CreateOrganizationRequest {
	return service.CreateOrganizationRequest{
		FullName:    name + " LLC",
		ShortName:   name,
		Address:     "1 Main St",
		ParentID:    parent,
		PhoneNumber: "+998901234567",
		TIN:         "1234567890",
		Email:       name + "@example.com",
		Rekvizit:    "acct 0001",
	}
}

func (f *fixture) user(t *testing.T, username string, orgID uuid.UUID, roles ...*service.RoleResponse) *service.UserResponse {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	u, err := f.userSvc.CreateUser(f.ctx, service.CreateUserRequest{
		OrganizationID: orgID,
		Username:       username,
		Email:          fmt.Sprintf("%s@example.com", username),
		Password:       "secret-pass",
		RoleIDs:        ids,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) can(t *testing.T, userID uuid.UUID, key string) bool {
	t.Helper()
	ok, err := f.authz.HasPermission(f.ctx, userID, key)
	require.NoError(t, err)
	return ok
}

func ptr[T any](v T) *T { return &v }
