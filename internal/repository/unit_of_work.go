package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orgadmin/internal/audit"
	"orgadmin/internal/database"
	"orgadmin/internal/model"
	"orgadmin/pkg/apperror"
)

// ErrNoUnitOfWork is returned when a mutation is staged outside RunInTx.
var ErrNoUnitOfWork = errors.New("no unit of work in context")

type pending struct {
	entity  model.Entity
	state   audit.State
	id      uuid.UUID // id before staging, restored on rollback
	version int64
	audit   model.Auditable
	kind    audit.Kind
}

// unitOfWork is the arena of pending writes for one transaction, keyed by
// entity id and flushed in staging order.
type unitOfWork struct {
	tx      *gorm.DB
	order   []uuid.UUID
	entries map[uuid.UUID]*pending
	flushed bool
}

func newUnitOfWork(tx *gorm.DB) *unitOfWork {
	return &unitOfWork{tx: tx, entries: make(map[uuid.UUID]*pending)}
}

func unitFrom(ctx context.Context) *unitOfWork {
	u, _ := ctx.Value(uowKey).(*unitOfWork)
	return u
}

// StageNew schedules e for insertion. An id is assigned if e has none.
func StageNew(ctx context.Context, e model.Entity) error {
	return stage(ctx, e, audit.New)
}

// StageChanged schedules e for an update. Raise e's deletion flag first to
// make the update a logical delete.
func StageChanged(ctx context.Context, e model.Entity) error {
	return stage(ctx, e, audit.Changed)
}

// Detach withdraws e from the unit of work; it will not be written.
func Detach(ctx context.Context, e model.Entity) {
	if u := unitFrom(ctx); u != nil {
		if p, ok := u.entries[e.Meta().ID]; ok && p.entity == e {
			p.state = audit.Detached
		}
	}
}

func stage(ctx context.Context, e model.Entity, state audit.State) error {
	u := unitFrom(ctx)
	if u == nil {
		return ErrNoUnitOfWork
	}
	if u.flushed {
		return errors.New("unit of work already flushed")
	}

	meta := e.Meta()
	origID := meta.ID
	if meta.ID == uuid.Nil {
		if state != audit.New {
			return fmt.Errorf("stage %s: changed entity has no id", entityName(e))
		}
		meta.ID = model.NewID()
	}

	if p, ok := u.entries[meta.ID]; ok {
		if p.entity != e {
			return apperror.Conflict("%s %s is staged twice from different copies", entityName(e), meta.ID)
		}
		// a row created in this unit of work stays an insert
		if p.state != audit.New {
			p.state = state
		}
		return nil
	}

	u.entries[meta.ID] = &pending{
		entity:  e,
		state:   state,
		id:      origID,
		version: meta.Version,
		audit:   *e.AuditFields(),
	}
	u.order = append(u.order, meta.ID)
	return nil
}

// flush classifies and stamps every staged entity, then writes it. It runs
// once, after all business logic has staged its mutations.
func (u *unitOfWork) flush(actor *uuid.UUID, now time.Time) ([]audit.Change, error) {
	u.flushed = true
	changes := make([]audit.Change, 0, len(u.order))
	tenants := make(map[uuid.UUID]uuid.UUID)
	for _, id := range u.order {
		p := u.entries[id]
		p.kind = audit.Classify(p.state, p.entity.AuditFields())
		if p.kind == audit.Skip {
			continue
		}
		omit := audit.Apply(p.kind, p.entity.AuditFields(), actor, now)
		if err := u.write(p, omit); err != nil {
			return nil, err
		}
		org, err := u.owner(p.entity, tenants)
		if err != nil {
			return nil, err
		}
		changes = append(changes, audit.Change{
			Entity:       entityName(p.entity),
			ID:           id,
			Kind:         p.kind.String(),
			Actor:        actor,
			At:           now,
			Organization: org,
		})
	}
	if err := appendAuditLog(u.tx, changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// owner resolves the tenant of e after it was written. Users are looked up
// inside the transaction, deleted ones included, and memoised per flush.
func (u *unitOfWork) owner(e model.Entity, users map[uuid.UUID]uuid.UUID) (*uuid.UUID, error) {
	switch o := e.(type) {
	case model.OrgOwned:
		id := o.OwningOrganization()
		if user, ok := e.(*model.User); ok {
			users[user.ID] = id
		}
		return &id, nil
	case model.UserOwned:
		userID := o.OwningUser()
		if org, ok := users[userID]; ok {
			return &org, nil
		}
		var user model.User
		err := u.tx.Scopes(database.IncludeDeleted).Select("id", "organization_id").First(&user, "id = ?", userID).Error
		if err != nil {
			return nil, translateError(err, "user")
		}
		users[userID] = user.OrganizationID
		return &user.OrganizationID, nil
	}
	return nil, nil
}

func (u *unitOfWork) write(p *pending, omit []string) error {
	meta := p.entity.Meta()
	db := u.tx.Scopes(database.Stamped)

	if p.kind == audit.Create {
		meta.Version = 1
		return translateError(db.Omit(clause.Associations).Create(p.entity).Error, entityName(p.entity))
	}

	meta.Version = p.version + 1
	res := db.Model(p.entity).
		Select("*").
		Omit(append(omit, clause.Associations)...).
		Where("version = ?", p.version).
		Updates(p.entity)
	if res.Error != nil {
		return translateError(res.Error, entityName(p.entity))
	}
	if res.RowsAffected == 0 {
		return apperror.Conflict("%s %s was changed by someone else; reload and retry", entityName(p.entity), meta.ID)
	}
	return nil
}

// rollback puts every staged entity back the way it was handed in.
func (u *unitOfWork) rollback() {
	for _, p := range u.entries {
		meta := p.entity.Meta()
		meta.ID = p.id
		meta.Version = p.version
		*p.entity.AuditFields() = p.audit
	}
}

func (u *unitOfWork) committed() {
	for _, p := range u.entries {
		if p.kind != audit.Skip {
			p.entity.AuditFields().Snapshot()
		}
	}
}

func entityName(e any) string {
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
