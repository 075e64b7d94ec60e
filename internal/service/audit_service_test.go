package service_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgadmin/internal/service"
)

func TestAuditTrailRecordsTenant(t *testing.T) {
	f := newFixture(t)
	_, a, _, _, b := tree(t, f)
	viewer := f.role(t, "viewer")
	u := f.user(t, "u", a.ID, viewer)

	owner := func(entity string, id *uuid.UUID) *uuid.UUID {
		t.Helper()
		logs, _, err := f.auditSvc.GetAuditLogs(f.ctx, service.AuditQuery{Entity: entity, EntityID: id, Limit: 10})
		require.NoError(t, err)
		require.NotEmpty(t, logs, entity)
		return logs[0].OrganizationID
	}

	assert.Equal(t, &b.ID, owner("Organization", &b.ID))
	assert.Equal(t, &a.ID, owner("User", &u.ID))
	// the assignment belongs to the tenant of its user
	assert.Equal(t, &a.ID, owner("UserRole", nil))
	assert.Nil(t, owner("Role", &viewer.ID))
}

func TestAuditTrailScopedByTenant(t *testing.T) {
	f := newFixture(t)
	_, a, a1, _, b := tree(t, f)
	f.role(t, "viewer")

	visible, err := f.orgSvc.VisibleIDs(f.ctx, a.ID, true)
	require.NoError(t, err)

	seen := func(q service.AuditQuery) map[uuid.UUID]bool {
		t.Helper()
		q.Limit = 100
		logs, _, err := f.auditSvc.GetAuditLogs(f.ctx, q)
		require.NoError(t, err)
		out := map[uuid.UUID]bool{}
		for _, l := range logs {
			out[l.EntityID] = true
			if l.OrganizationID == nil {
				out[uuid.Nil] = true
			}
		}
		return out
	}

	got := seen(service.AuditQuery{Organizations: visible})
	assert.True(t, got[a.ID])
	assert.True(t, got[a1.ID])
	assert.False(t, got[b.ID], "sibling")
	assert.False(t, got[uuid.Nil], "catalog")

	got = seen(service.AuditQuery{Organizations: visible, Unowned: true})
	assert.True(t, got[uuid.Nil])
	assert.False(t, got[b.ID])

	got = seen(service.AuditQuery{})
	assert.True(t, got[b.ID])
}
