package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"orgadmin/internal/database"
)

// ListOptions controls a list query. Limit 0 means no limit.
type ListOptions struct {
	Offset         int
	Limit          int
	IncludeDeleted bool
}

func (o ListOptions) scope(db *gorm.DB) *gorm.DB {
	if o.IncludeDeleted {
		db = db.Scopes(database.IncludeDeleted)
	}
	return db
}

// insertion order: created_at, then the time-ordered id
const insertionOrder = "created_at asc, id asc"

func findByID[T any](ctx context.Context, db *gorm.DB, id uuid.UUID, entity string, includeDeleted bool) (*T, error) {
	var out T
	q := GetDB(ctx, db)
	if includeDeleted {
		q = q.Scopes(database.IncludeDeleted)
	}
	if err := q.First(&out, "id = ?", id).Error; err != nil {
		return nil, translateError(err, entity)
	}
	return &out, nil
}

func findBy[T any](ctx context.Context, db *gorm.DB, entity, query string, args ...any) (*T, error) {
	var out T
	if err := GetDB(ctx, db).Where(query, args...).Order(insertionOrder).First(&out).Error; err != nil {
		return nil, translateError(err, entity)
	}
	return &out, nil
}

// list returns one page in insertion order plus the total row count.
func list[T any](ctx context.Context, db *gorm.DB, opts ListOptions, entity string, filters ...func(*gorm.DB) *gorm.DB) ([]T, int64, error) {
	var (
		rows  []T
		total int64
		zero  T
	)
	base := func() *gorm.DB {
		return opts.scope(GetDB(ctx, db).Model(&zero)).Scopes(filters...)
	}
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, translateError(err, entity)
	}
	q := base().Order(insertionOrder).Offset(opts.Offset)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, translateError(err, entity)
	}
	return rows, total, nil
}
