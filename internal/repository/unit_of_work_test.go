package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"orgadmin/internal/audit"
	"orgadmin/internal/database"
	"orgadmin/internal/model"
	"orgadmin/internal/repository"
	"orgadmin/internal/testutil"
	"orgadmin/pkg/apperror"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]audit.Change
}

func (r *recorder) Publish(changes []audit.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, changes)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time         { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	db    *gorm.DB
	tm    repository.TransactionManager
	roles repository.RoleRepository
	feed  *recorder
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	db := testutil.OpenDB(t)
	feed := &recorder{}
	clk := &clock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	return &fixture{
		db:    db,
		tm:    repository.NewTransactionManager(db, repository.WithNotifier(feed), repository.WithClock(clk.Now)),
		roles: repository.NewRoleRepository(db),
		feed:  feed,
		clock: clk,
	}
}

func (f *fixture) createRole(t *testing.T, ctx context.Context, key string) *model.Role {
	t.Helper()
	role := &model.Role{Name: key, Key: key}
	require.NoError(t, f.tm.RunInTx(ctx, func(txCtx context.Context) error {
		return f.roles.Create(txCtx, role)
	}))
	return role
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *model.Role {
	t.Helper()
	var role model.Role
	require.NoError(t, f.db.Scopes(database.IncludeDeleted).First(&role, "id = ?", id).Error)
	return &role
}

func TestCreateStampsActorAndTime(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	ctx := audit.WithActor(context.Background(), actor)

	role := f.createRole(t, ctx, "editor")

	assert.NotEqual(t, uuid.Nil, role.ID)
	assert.EqualValues(t, 1, role.Version)
	stored := f.reload(t, role.ID)
	assert.True(t, stored.CreatedAt.Equal(f.clock.now))
	require.NotNil(t, stored.CreatedBy)
	assert.Equal(t, actor, *stored.CreatedBy)
	assert.Nil(t, stored.ModifiedAt)
	assert.Nil(t, stored.DeletedAt)
	assert.False(t, stored.IsDeleted)

	require.Len(t, f.feed.batches, 1)
	assert.Equal(t, "Role", f.feed.batches[0][0].Entity)
	assert.Equal(t, "create", f.feed.batches[0][0].Kind)

	var trail []model.AuditLog
	require.NoError(t, f.db.Find(&trail).Error)
	require.Len(t, trail, 1)
	assert.Equal(t, role.ID, trail[0].EntityID)
	assert.Equal(t, actor, *trail[0].ActorID)
}

func TestUpdateNeverRewritesCreatedFields(t *testing.T) {
	f := newFixture(t)
	creator, editor := uuid.New(), uuid.New()
	role := f.createRole(t, audit.WithActor(context.Background(), creator), "editor")
	created := f.clock.now

	f.clock.Advance(time.Hour)
	loaded := f.reload(t, role.ID)
	loaded.Name = "Editor"
	// tampering in memory must not reach the store
	loaded.CreatedAt = time.Time{}
	loaded.CreatedBy = &editor

	ctx := audit.WithActor(context.Background(), editor)
	require.NoError(t, f.tm.RunInTx(ctx, func(txCtx context.Context) error {
		return f.roles.Update(txCtx, loaded)
	}))

	stored := f.reload(t, role.ID)
	assert.Equal(t, "Editor", stored.Name)
	assert.True(t, stored.CreatedAt.Equal(created))
	assert.Equal(t, creator, *stored.CreatedBy)
	require.NotNil(t, stored.ModifiedAt)
	assert.True(t, stored.ModifiedAt.Equal(f.clock.now))
	assert.Equal(t, editor, *stored.ModifiedBy)
	assert.EqualValues(t, 2, stored.Version)
}

func TestSoftDeleteStampsDeletionOnly(t *testing.T) {
	f := newFixture(t)
	creator, editor, remover := uuid.New(), uuid.New(), uuid.New()
	role := f.createRole(t, audit.WithActor(context.Background(), creator), "editor")

	f.clock.Advance(time.Minute)
	modifiedAt := f.clock.now
	loaded := f.reload(t, role.ID)
	loaded.Name = "Editor"
	require.NoError(t, f.tm.RunInTx(audit.WithActor(context.Background(), editor), func(txCtx context.Context) error {
		return f.roles.Update(txCtx, loaded)
	}))

	f.clock.Advance(time.Minute)
	loaded = f.reload(t, role.ID)
	loaded.MarkDeleted()
	require.NoError(t, f.tm.RunInTx(audit.WithActor(context.Background(), remover), func(txCtx context.Context) error {
		return f.roles.Update(txCtx, loaded)
	}))

	stored := f.reload(t, role.ID)
	assert.True(t, stored.IsDeleted)
	require.NotNil(t, stored.DeletedAt)
	assert.True(t, stored.DeletedAt.Equal(f.clock.now))
	assert.Equal(t, remover, *stored.DeletedBy)
	assert.True(t, stored.ModifiedAt.Equal(modifiedAt))
	assert.Equal(t, editor, *stored.ModifiedBy)

	_, err := f.roles.FindByID(context.Background(), role.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	var physical int64
	require.NoError(t, f.db.Scopes(database.IncludeDeleted).Model(&model.Role{}).Count(&physical).Error)
	assert.EqualValues(t, 1, physical)

	last := f.feed.batches[len(f.feed.batches)-1]
	assert.Equal(t, "delete", last[0].Kind)
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")
	role := &model.Role{Name: "editor", Key: "editor"}

	err := f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		if err := f.roles.Create(txCtx, role); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, uuid.Nil, role.ID)
	assert.True(t, role.CreatedAt.IsZero())
	var n int64
	require.NoError(t, f.db.Scopes(database.IncludeDeleted).Model(&model.Role{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Empty(t, f.feed.batches)
}

func TestFailedFlushRestoresStagedEntities(t *testing.T) {
	f := newFixture(t)
	f.createRole(t, context.Background(), "editor")

	first := &model.Role{Name: "viewer", Key: "viewer"}
	dup := &model.Role{Name: "editor again", Key: "editor"}
	err := f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		if err := f.roles.Create(txCtx, first); err != nil {
			return err
		}
		return f.roles.Create(txCtx, dup)
	})
	require.ErrorIs(t, err, apperror.ErrConflict)

	assert.True(t, first.CreatedAt.IsZero())
	assert.Zero(t, first.Version)
	_, err = f.roles.FindByKey(context.Background(), "viewer")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCancelledContextAbandonsUnit(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := f.tm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := f.roles.Create(txCtx, &model.Role{Name: "editor", Key: "editor"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, apperror.ErrUnavailable)

	var n int64
	require.NoError(t, f.db.Scopes(database.IncludeDeleted).Model(&model.Role{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestStaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	role := f.createRole(t, context.Background(), "editor")

	a := f.reload(t, role.ID)
	b := f.reload(t, role.ID)

	a.Name = "A"
	require.NoError(t, f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		return f.roles.Update(txCtx, a)
	}))

	b.Name = "B"
	err := f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		return f.roles.Update(txCtx, b)
	})
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.EqualValues(t, 1, b.Version)
	assert.Nil(t, b.ModifiedAt)
	assert.Equal(t, "A", f.reload(t, role.ID).Name)
}

func TestStagingTwiceStampsOnce(t *testing.T) {
	f := newFixture(t)
	role := &model.Role{Name: "editor", Key: "editor"}

	require.NoError(t, f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		if err := f.roles.Create(txCtx, role); err != nil {
			return err
		}
		role.Description = "set after staging"
		return f.roles.Update(txCtx, role)
	}))

	require.Len(t, f.feed.batches, 1)
	require.Len(t, f.feed.batches[0], 1)
	assert.Equal(t, "create", f.feed.batches[0][0].Kind)
	stored := f.reload(t, role.ID)
	assert.Equal(t, "set after staging", stored.Description)
	assert.Nil(t, stored.ModifiedAt)
}

func TestDetachedEntityIsNotWritten(t *testing.T) {
	f := newFixture(t)
	role := f.createRole(t, context.Background(), "editor")
	loaded := f.reload(t, role.ID)

	require.NoError(t, f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		loaded.Name = "discarded"
		if err := f.roles.Update(txCtx, loaded); err != nil {
			return err
		}
		repository.Detach(txCtx, loaded)
		return nil
	}))
	assert.Equal(t, "editor", f.reload(t, role.ID).Name)
}

func TestNestedRunInTxJoinsOuter(t *testing.T) {
	f := newFixture(t)
	outer := &model.Role{Name: "outer", Key: "outer"}
	inner := &model.Role{Name: "inner", Key: "inner"}
	boom := errors.New("boom")

	err := f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		if err := f.roles.Create(txCtx, outer); err != nil {
			return err
		}
		if err := f.tm.RunInTx(txCtx, func(innerCtx context.Context) error {
			return f.roles.Create(innerCtx, inner)
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, f.db.Model(&model.Role{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestStageOutsideUnitOfWork(t *testing.T) {
	f := newFixture(t)
	err := f.roles.Create(context.Background(), &model.Role{Name: "x", Key: "x"})
	assert.ErrorIs(t, err, repository.ErrNoUnitOfWork)
}

func TestDuplicateLiveKeyConflicts(t *testing.T) {
	f := newFixture(t)
	f.createRole(t, context.Background(), "editor")

	err := f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		return f.roles.Create(txCtx, &model.Role{Name: "other", Key: "editor"})
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestDeletedKeyCanBeReused(t *testing.T) {
	f := newFixture(t)
	role := f.createRole(t, context.Background(), "editor")
	loaded := f.reload(t, role.ID)
	loaded.MarkDeleted()
	require.NoError(t, f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		return f.roles.Update(txCtx, loaded)
	}))

	f.createRole(t, context.Background(), "editor")
}

func TestRestoreClearsDeletionStamp(t *testing.T) {
	f := newFixture(t)
	role := f.createRole(t, context.Background(), "editor")
	loaded := f.reload(t, role.ID)
	loaded.MarkDeleted()
	require.NoError(t, f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		return f.roles.Update(txCtx, loaded)
	}))

	loaded = f.reload(t, role.ID)
	loaded.Restore()
	require.NoError(t, f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		return f.roles.Update(txCtx, loaded)
	}))

	stored := f.reload(t, role.ID)
	assert.False(t, stored.IsDeleted)
	assert.Nil(t, stored.DeletedAt)
	assert.Nil(t, stored.DeletedBy)
	assert.NotNil(t, stored.ModifiedAt)
}
