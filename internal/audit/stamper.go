package audit

import (
	"time"

	"github.com/google/uuid"

	"orgadmin/internal/model"
)

// Columns a write must leave untouched, per stamp kind.
var (
	createdColumns  = []string{"created_at", "created_by"}
	modifiedColumns = []string{"modified_at", "modified_by"}
)

// Apply writes the audit metadata for kind onto a and returns the columns the
// following UPDATE must omit. createdAt/createdBy are never part of an update.
func Apply(kind Kind, a *model.Auditable, actor *uuid.UUID, now time.Time) []string {
	switch kind {
	case Create:
		a.CreatedAt = now
		a.CreatedBy = copyID(actor)
		a.ModifiedAt, a.ModifiedBy = nil, nil
		a.DeletedAt, a.DeletedBy = nil, nil
		a.IsDeleted = false
		return nil
	case Modify:
		if a.RestoreRequested() {
			a.DeletedAt, a.DeletedBy = nil, nil
		}
		a.ModifiedAt = timePtr(now)
		a.ModifiedBy = copyID(actor)
		return append([]string(nil), createdColumns...)
	case Delete:
		a.DeletedAt = timePtr(now)
		a.DeletedBy = copyID(actor)
		omit := append([]string(nil), createdColumns...)
		return append(omit, modifiedColumns...)
	default:
		return nil
	}
}

// Change is one stamped write, published after the unit of work commits.
type Change struct {
	Entity string     `json:"entity"`
	ID     uuid.UUID  `json:"id"`
	Kind   string     `json:"kind"`
	Actor  *uuid.UUID `json:"actor,omitempty"`
	At     time.Time  `json:"at"`
	// Organization owns the entity; nil for catalog entities.
	Organization *uuid.UUID `json:"organization_id,omitempty"`
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func timePtr(t time.Time) *time.Time { return &t }
