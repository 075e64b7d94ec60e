package service_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgadmin/internal/service"
	"orgadmin/pkg/apperror"
)

func TestCreateUserValidatesReferences(t *testing.T) {
	f := newFixture(t)
	org := f.org(t, "acme", nil)

	_, err := f.userSvc.CreateUser(f.ctx, service.CreateUserRequest{
		OrganizationID: uuid.New(), Username: "u", Email: "u@example.com", Password: "secret-pass",
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.userSvc.CreateUser(f.ctx, service.CreateUserRequest{
		OrganizationID: org.ID, Username: "u", Email: "u@example.com", Password: "secret-pass",
		RoleIDs: []uuid.UUID{uuid.New()},
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, total, err := f.userSvc.ListUsers(f.ctx, service.ListQuery{IncludeDeleted: true}, nil)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreateUserUniqueness(t *testing.T) {
	f := newFixture(t)
	org := f.org(t, "acme", nil)
	u := f.user(t, "alice", org.ID)

	_, err := f.userSvc.CreateUser(f.ctx, service.CreateUserRequest{
		OrganizationID: org.ID, Username: "alice", Email: "other@example.com", Password: "secret-pass",
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = f.userSvc.CreateUser(f.ctx, service.CreateUserRequest{
		OrganizationID: org.ID, Username: "other", Email: "alice@example.com", Password: "secret-pass",
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	require.NoError(t, f.userSvc.DeleteUser(f.ctx, u.ID))
	f.user(t, "alice", org.ID)
}

func TestUserResponseHidesPassword(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", f.org(t, "acme", nil).ID)

	raw, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-pass")
	assert.NotContains(t, string(raw), "password")
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	acme := f.org(t, "acme", nil)
	other := f.org(t, "other", nil)
	f.user(t, "bob", acme.ID)
	u := f.user(t, "alice", acme.ID)

	_, err := f.userSvc.UpdateUser(f.ctx, u.ID, service.UpdateUserRequest{Username: "bob"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = f.userSvc.UpdateUser(f.ctx, u.ID, service.UpdateUserRequest{OrganizationID: ptr(uuid.New())})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	f.clock.Advance(30 * time.Minute)
	got, err := f.userSvc.UpdateUser(f.ctx, u.ID, service.UpdateUserRequest{
		OrganizationID: &other.ID,
		FullName:       ptr("Alice A."),
		Version:        ptr(u.Version),
	})
	require.NoError(t, err)
	assert.Equal(t, other.ID, got.OrganizationID)
	assert.Equal(t, "Alice A.", got.FullName)
	assert.Equal(t, "alice", got.Username)
	assert.EqualValues(t, 2, got.Version)
	require.NotNil(t, got.ModifiedAt)
	assert.True(t, got.ModifiedAt.Equal(f.clock.now))
	assert.True(t, got.CreatedAt.Equal(u.CreatedAt), "creation stamp is immutable")

	_, err = f.userSvc.UpdateUser(f.ctx, u.ID, service.UpdateUserRequest{Phone: ptr("1"), Version: ptr(u.Version)})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestListUsersScopedByOrganization(t *testing.T) {
	f := newFixture(t)
	root, a, _, a11, b := tree(t, f)
	f.user(t, "in-a", a.ID)
	f.user(t, "in-a11", a11.ID)
	f.user(t, "in-b", b.ID)
	f.user(t, "in-root", root.ID)

	visible, err := f.orgSvc.VisibleIDs(f.ctx, a.ID, false)
	require.NoError(t, err)
	users, total, err := f.userSvc.ListUsers(f.ctx, service.ListQuery{}, visible)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "in-a", users[0].Username)
	assert.Equal(t, "in-a11", users[1].Username)

	page, total, err := f.userSvc.ListUsers(f.ctx, service.ListQuery{Page: 2, Limit: 3}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, page, 1)
	assert.Equal(t, "in-root", page[0].Username)
}

func TestAssignRolesReplacesSet(t *testing.T) {
	f := newFixture(t)
	r1, r2, r3 := f.role(t, "r1"), f.role(t, "r2"), f.role(t, "r3")
	u := f.user(t, "u", f.org(t, "acme", nil).ID, r1, r2)
	require.Len(t, u.Roles, 2)

	got, err := f.userSvc.AssignRoles(f.ctx, u.ID, []uuid.UUID{r2.ID, r3.ID, r3.ID})
	require.NoError(t, err)
	keys := []string{}
	for _, r := range got.Roles {
		keys = append(keys, r.Key)
	}
	assert.ElementsMatch(t, []string{"r2", "r3"}, keys)

	_, err = f.userSvc.AssignRoles(f.ctx, u.ID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	roles, err := f.userSvc.GetUserRoles(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 2, "failed assignment leaves the set unchanged")
}

func TestGetUserPermissions(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "u", f.org(t, "acme", nil).ID,
		f.role(t, "r1", f.permission(t, "b"), f.permission(t, "a")))

	keys, err := f.userSvc.GetUserPermissions(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	_, err = f.userSvc.GetUserPermissions(f.ctx, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
