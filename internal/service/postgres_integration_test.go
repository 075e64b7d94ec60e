//go:build integration

package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"orgadmin/internal/database"
	"orgadmin/internal/logging"
	"orgadmin/internal/model"
	"orgadmin/internal/service"
	"orgadmin/pkg/apperror"
)

func openPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("orgadmin_test"),
		postgres.WithUsername("orgadmin"),
		postgres.WithPassword("orgadmin"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := database.Open(gormpostgres.Open(dsn), logging.Discard())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestPostgresLiveKeyUniqueness(t *testing.T) {
	f := newFixtureOn(openPostgres(t))

	p := f.permission(t, "documents.read")
	_, err := f.permSvc.CreatePermission(f.ctx, service.CreatePermissionRequest{Name: "again", Key: "documents.read"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	// a deleted row frees its key
	require.NoError(t, f.permSvc.DeletePermission(f.ctx, p.ID))
	_, err = f.permSvc.CreatePermission(f.ctx, service.CreatePermissionRequest{Name: "again", Key: "documents.read"})
	require.NoError(t, err)

	var n int64
	require.NoError(t, f.db.Scopes(database.IncludeDeleted).Model(&model.Permission{}).
		Where("key = ?", "documents.read").Count(&n).Error)
	assert.EqualValues(t, 2, n)
}

func TestPostgresConcurrentMovesStayAcyclic(t *testing.T) {
	f := newFixtureOn(openPostgres(t))
	root := f.org(t, "root", nil)
	a := f.org(t, "a", &root.ID)
	b := f.org(t, "b", &root.ID)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	move := func(i int, org, parent *service.OrganizationResponse) {
		defer wg.Done()
		_, errs[i] = f.orgSvc.SetParent(f.ctx, org.ID, &parent.ID)
	}
	for range 20 {
		wg.Add(2)
		go move(0, a, b)
		go move(1, b, a)
		wg.Wait()
		if errs[0] == nil || errs[1] == nil {
			break
		}
	}

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		kind := apperror.KindOf(err)
		assert.Contains(t, []apperror.Kind{apperror.KindConflict, apperror.KindUnavailable}, kind, err)
	}
	assert.Equal(t, 1, succeeded)

	ctx, cancel := context.WithTimeout(f.ctx, 10*time.Second)
	defer cancel()
	for _, id := range []*service.OrganizationResponse{a, b} {
		chain, err := f.orgSvc.Ancestors(ctx, id.ID)
		require.NoError(t, err)
		require.NotEmpty(t, chain)
		assert.Equal(t, root.ID, chain[len(chain)-1].ID)
	}
}

func TestPostgresDeleteRacesChildCreation(t *testing.T) {
	f := newFixtureOn(openPostgres(t))
	root := f.org(t, "root", nil)
	a := f.org(t, "a", &root.ID)

	var (
		wg        sync.WaitGroup
		deleteErr error
		createErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		deleteErr = f.orgSvc.DeleteOrganization(f.ctx, a.ID)
	}()
	go func() {
		defer wg.Done()
		_, createErr = f.orgSvc.CreateOrganization(f.ctx, orgRequest("a1", &a.ID))
	}()
	wg.Wait()

	// never both: a deleted parent with a live child
	assert.False(t, deleteErr == nil && createErr == nil, "delete=%v create=%v", deleteErr, createErr)
}

func TestPostgresDeleteRacesUserCreation(t *testing.T) {
	f := newFixtureOn(openPostgres(t))
	root := f.org(t, "root", nil)

	for i := range 10 {
		org := f.org(t, fmt.Sprintf("branch-%d", i), &root.ID)
		var (
			wg        sync.WaitGroup
			deleteErr error
			createErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			deleteErr = f.orgSvc.DeleteOrganization(f.ctx, org.ID)
		}()
		go func() {
			defer wg.Done()
			_, createErr = f.userSvc.CreateUser(f.ctx, service.CreateUserRequest{
				OrganizationID: org.ID,
				Username:       fmt.Sprintf("user-%d", i),
				Email:          fmt.Sprintf("user-%d@example.com", i),
				Password:       "secret-pass",
			})
		}()
		wg.Wait()

		// never a deleted organization holding a live user
		assert.False(t, deleteErr == nil && createErr == nil, "round %d: delete=%v create=%v", i, deleteErr, createErr)
		if createErr == nil {
			users, err := f.orgs.CountUsers(f.ctx, org.ID)
			require.NoError(t, err)
			assert.EqualValues(t, 1, users)
		}
	}
}
