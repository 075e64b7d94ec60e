package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgadmin/internal/database"
	"orgadmin/internal/model"
	"orgadmin/internal/repository"
	"orgadmin/internal/service"
	"orgadmin/pkg/apperror"
)

func TestEditorScenario(t *testing.T) {
	f := newFixture(t)
	write := f.permission(t, "content.write")
	editor := f.role(t, "editor", write)
	org := f.org(t, "acme", nil)
	u := f.user(t, "u", org.ID, editor)

	assert.True(t, f.can(t, u.ID, "content.write"))

	require.NoError(t, f.roleSvc.DeleteRole(f.ctx, editor.ID))
	assert.False(t, f.can(t, u.ID, "content.write"))

	live, total, err := f.roleSvc.ListRoles(f.ctx, service.ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, live)

	all, total, err := f.roleSvc.ListRoles(f.ctx, service.ListQuery{IncludeDeleted: true})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "editor", all[0].Key)
	assert.True(t, all[0].IsDeleted)
	require.NotNil(t, all[0].DeletedAt)
	assert.True(t, all[0].DeletedAt.Equal(f.clock.now))
	require.NotNil(t, all[0].DeletedBy)
	assert.Equal(t, f.admin, *all[0].DeletedBy)

	_, err = f.roleSvc.GetRole(f.ctx, editor.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestPermissionUnion(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.permission(t, "a"), f.permission(t, "b"), f.permission(t, "c")
	f.permission(t, "d")
	r1 := f.role(t, "r1", a, b)
	r2 := f.role(t, "r2", b, c)
	u := f.user(t, "u", f.org(t, "acme", nil).ID, r1, r2)

	for _, key := range []string{"a", "b", "c"} {
		assert.True(t, f.can(t, u.ID, key), key)
	}
	assert.False(t, f.can(t, u.ID, "d"))

	keys, err := f.authz.Permissions(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	_, err = f.userSvc.AssignRoles(f.ctx, u.ID, []uuid.UUID{r1.ID})
	require.NoError(t, err)
	assert.True(t, f.can(t, u.ID, "b"))
	assert.False(t, f.can(t, u.ID, "c"))
	assert.Equal(t, 4, f.decisions.allowed)
	assert.Equal(t, 2, f.decisions.denied)
}

func TestDeletedPermissionGrantsNothing(t *testing.T) {
	f := newFixture(t)
	a := f.permission(t, "a")
	u := f.user(t, "u", f.org(t, "acme", nil).ID, f.role(t, "r", a))
	require.True(t, f.can(t, u.ID, "a"))

	require.NoError(t, f.permSvc.DeletePermission(f.ctx, a.ID))
	assert.False(t, f.can(t, u.ID, "a"))
}

func TestDeletedUserHoldsNothing(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "u", f.org(t, "acme", nil).ID, f.role(t, "r", f.permission(t, "a")))

	require.NoError(t, f.userSvc.DeleteUser(f.ctx, u.ID))
	assert.False(t, f.can(t, u.ID, "a"))
}

func TestUpdateRoleDiffsGrants(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.permission(t, "a"), f.permission(t, "b"), f.permission(t, "c")
	r := f.role(t, "r", a, b)

	before, err := f.roles.Grants(f.ctx, r.ID)
	require.NoError(t, err)
	var keptID uuid.UUID
	for _, g := range before {
		if g.PermissionID == b.ID {
			keptID = g.ID
		}
	}

	updated, err := f.roleSvc.UpdateRole(f.ctx, r.ID, service.UpdateRoleRequest{
		Name:          "r",
		Key:           "r",
		PermissionIDs: []uuid.UUID{b.ID, c.ID},
		Version:       ptr(r.Version),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.Version)

	after, err := f.roles.Grants(f.ctx, r.ID)
	require.NoError(t, err)
	got := map[uuid.UUID]uuid.UUID{}
	for _, g := range after {
		got[g.PermissionID] = g.ID
	}
	assert.Len(t, got, 2)
	assert.Equal(t, keptID, got[b.ID], "unchanged pair keeps its row")
	assert.Contains(t, got, c.ID)

	total, err := repository.CountGrants(f.ctx, f.db, r.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total, "revoked pair is soft-deleted, not removed")
}

func TestUpdateRoleIsAtomic(t *testing.T) {
	f := newFixture(t)
	a, b := f.permission(t, "a"), f.permission(t, "b")
	r := f.role(t, "r", a)

	_, err := f.roleSvc.UpdateRole(f.ctx, r.ID, service.UpdateRoleRequest{
		Name:          "renamed",
		Key:           "r",
		PermissionIDs: []uuid.UUID{b.ID, uuid.New()},
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	got, err := f.roleSvc.GetRole(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "r", got.Name)
	assert.EqualValues(t, 1, got.Version)
	require.Len(t, got.Permissions, 1)
	assert.Equal(t, "a", got.Permissions[0].Key)
}

func TestUpdateRoleStaleVersion(t *testing.T) {
	f := newFixture(t)
	r := f.role(t, "r")

	_, err := f.roleSvc.UpdateRole(f.ctx, r.ID, service.UpdateRoleRequest{
		Name: "x", Key: "r", PermissionIDs: []uuid.UUID{}, Version: ptr(int64(7)),
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestRoleKeyUniqueAmongLiveRows(t *testing.T) {
	f := newFixture(t)
	r := f.role(t, "editor")

	_, err := f.roleSvc.CreateRole(f.ctx, service.CreateRoleRequest{Name: "dup", Key: "editor"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	require.NoError(t, f.roleSvc.DeleteRole(f.ctx, r.ID))
	again := f.role(t, "editor")
	assert.NotEqual(t, r.ID, again.ID)

	_, err = f.roleSvc.RestoreRole(f.ctx, r.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict, "restoring would duplicate a live key")
}

func TestRestoreRoleBringsGrantsBack(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "u", f.org(t, "acme", nil).ID, f.role(t, "r", f.permission(t, "a")))
	roles, err := f.userSvc.GetUserRoles(f.ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	id := roles[0].ID

	require.NoError(t, f.roleSvc.DeleteRole(f.ctx, id))
	require.False(t, f.can(t, u.ID, "a"))

	restored, err := f.roleSvc.RestoreRole(f.ctx, id)
	require.NoError(t, err)
	assert.False(t, restored.IsDeleted)
	assert.Nil(t, restored.DeletedAt)
	assert.True(t, f.can(t, u.ID, "a"))
}

func TestSystemRoleCannotBeDeleted(t *testing.T) {
	f := newFixture(t)
	sys := &model.Role{Name: "Administrator", Key: "admin", IsSystem: true}
	require.NoError(t, f.tm.RunInTx(f.ctx, func(txCtx context.Context) error {
		return f.roles.Create(txCtx, sys)
	}))

	err := f.roleSvc.DeleteRole(f.ctx, sys.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = f.roleSvc.UpdateRole(f.ctx, sys.ID, service.UpdateRoleRequest{
		Name: "Administrator", Key: "root", PermissionIDs: []uuid.UUID{},
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestSoftDeleteNeverRemovesRows(t *testing.T) {
	f := newFixture(t)
	a := f.permission(t, "a")
	r := f.role(t, "r", a)
	org := f.org(t, "acme", nil)
	u := f.user(t, "u", org.ID, r)

	require.NoError(t, f.userSvc.DeleteUser(f.ctx, u.ID))
	require.NoError(t, f.roleSvc.DeleteRole(f.ctx, r.ID))
	require.NoError(t, f.permSvc.DeletePermission(f.ctx, a.ID))
	require.NoError(t, f.orgSvc.DeleteOrganization(f.ctx, org.ID))

	for _, m := range []any{&model.User{}, &model.Role{}, &model.Permission{}, &model.Organization{}, &model.UserRole{}, &model.RolePermission{}} {
		var n int64
		require.NoError(t, f.db.Model(m).Scopes(database.IncludeDeleted).Count(&n).Error)
		assert.EqualValues(t, 1, n, "%T", m)
	}
}

func TestUnknownPermissionOnCreateRole(t *testing.T) {
	f := newFixture(t)
	_, err := f.roleSvc.CreateRole(f.ctx, service.CreateRoleRequest{
		Name: "r", Key: "r", PermissionIDs: []uuid.UUID{uuid.New()},
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, total, err := f.roleSvc.ListRoles(f.ctx, service.ListQuery{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Zero(t, total)
}
