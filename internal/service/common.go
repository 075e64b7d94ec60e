package service

import (
	"time"

	"github.com/google/uuid"

	"orgadmin/internal/model"
	"orgadmin/internal/repository"
	"orgadmin/pkg/apperror"
)

// ListQuery is the paging input shared by every list operation. A zero Limit
// returns everything.
type ListQuery struct {
	Page           int
	Limit          int
	IncludeDeleted bool
}

func (q ListQuery) options() repository.ListOptions {
	opts := repository.ListOptions{IncludeDeleted: q.IncludeDeleted}
	if q.Limit > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		opts.Limit = q.Limit
		opts.Offset = (page - 1) * q.Limit
	}
	return opts
}

// AuditInfo is the audit metadata rendered with every entity.
type AuditInfo struct {
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	CreatedBy  *uuid.UUID `json:"created_by,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	ModifiedBy *uuid.UUID `json:"modified_by,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	DeletedBy  *uuid.UUID `json:"deleted_by,omitempty"`
	IsDeleted  bool       `json:"is_deleted"`
}

func auditInfo(b model.Base) AuditInfo {
	return AuditInfo{
		Version:    b.Version,
		CreatedAt:  b.CreatedAt,
		CreatedBy:  b.CreatedBy,
		ModifiedAt: b.ModifiedAt,
		ModifiedBy: b.ModifiedBy,
		DeletedAt:  b.DeletedAt,
		DeletedBy:  b.DeletedBy,
		IsDeleted:  b.IsDeleted,
	}
}

// checkVersion rejects a write based on a stale read. A nil expected version
// skips the check.
func checkVersion(b model.Base, expected *int64, entity string) error {
	if expected != nil && *expected != b.Version {
		return apperror.Conflict("%s %s is at version %d, not %d; reload and retry", entity, b.ID, b.Version, *expected)
	}
	return nil
}

// uniqueIDs drops duplicates, keeping first-seen order.
func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// missingIDs returns the requested ids that were not found.
func missingIDs[T any, P interface {
	*T
	model.Entity
}](want []uuid.UUID, found []T) []uuid.UUID {
	have := make(map[uuid.UUID]struct{}, len(found))
	for i := range found {
		have[P(&found[i]).Meta().ID] = struct{}{}
	}
	var missing []uuid.UUID
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
