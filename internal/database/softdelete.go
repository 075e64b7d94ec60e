package database

import (
	"errors"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orgadmin/internal/model"
)

const (
	includeDeletedKey = "orgadmin:include_deleted"
	stampedKey        = "orgadmin:stamped"
	liveOnlyClause    = "orgadmin:live_only"
	deletedColumn     = "is_deleted"
)

var (
	// ErrHardDelete is returned for any physical DELETE of an audited table.
	ErrHardDelete = errors.New("audited rows cannot be physically deleted; raise the deletion flag instead")
	// ErrUnstampedWrite is returned for INSERT/UPDATE of an audited table that
	// does not come from a unit of work flush.
	ErrUnstampedWrite = errors.New("audited rows must be written through a unit of work")
)

var entityType = reflect.TypeOf((*model.Entity)(nil)).Elem()

// IncludeDeleted opts one query into seeing logically deleted rows.
//
//	db.Scopes(database.IncludeDeleted).Find(&roles)
func IncludeDeleted(db *gorm.DB) *gorm.DB {
	return db.Set(includeDeletedKey, true)
}

// Stamped marks a write as carrying audit metadata. Only the unit of work uses it.
func Stamped(db *gorm.DB) *gorm.DB {
	return db.Set(stampedKey, true)
}

// RegisterCallbacks installs the live-rows filter on reads, and the guards on
// writes, for every model that embeds model.Base.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Query().Before("gorm:query").Register("orgadmin:live_rows", filterDeleted); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("orgadmin:live_rows", filterDeleted); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("orgadmin:no_hard_delete", rejectHardDelete); err != nil {
		return err
	}
	if err := cb.Create().Before("gorm:create").Register("orgadmin:stamped_only", requireStamped); err != nil {
		return err
	}
	return cb.Update().Before("gorm:update").Register("orgadmin:stamped_only", requireStamped)
}

func audited(db *gorm.DB) bool {
	s := db.Statement.Schema
	if s == nil {
		return false
	}
	if !reflect.PointerTo(s.ModelType).Implements(entityType) {
		return false
	}
	return s.LookUpField(deletedColumn) != nil
}

func flagged(db *gorm.DB, key string) bool {
	v, ok := db.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func filterDeleted(db *gorm.DB) {
	if db.Error != nil || !audited(db) || flagged(db, includeDeletedKey) {
		return
	}
	if _, ok := db.Statement.Clauses[liveOnlyClause]; ok {
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: deletedColumn}, Value: false},
	}})
	db.Statement.Clauses[liveOnlyClause] = clause.Clause{}
}

func rejectHardDelete(db *gorm.DB) {
	if db.Error == nil && audited(db) {
		_ = db.AddError(ErrHardDelete)
	}
}

func requireStamped(db *gorm.DB) {
	if db.Error == nil && audited(db) && !flagged(db, stampedKey) {
		_ = db.AddError(ErrUnstampedWrite)
	}
}
