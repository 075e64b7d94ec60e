package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"orgadmin/internal/model"
)

type TokenRepository interface {
	Create(ctx context.Context, token *model.Token) error
	Update(ctx context.Context, token *model.Token) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Token, error)
	FindByRefreshToken(ctx context.Context, refresh string) (*model.Token, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Token, error)
	// ListExpired returns live tokens whose refresh expiry is before t.
	ListExpired(ctx context.Context, t time.Time, limit int) ([]model.Token, error)
}

type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Create(ctx context.Context, token *model.Token) error {
	return StageNew(ctx, token)
}

func (r *tokenRepository) Update(ctx context.Context, token *model.Token) error {
	return StageChanged(ctx, token)
}

func (r *tokenRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Token, error) {
	return findByID[model.Token](ctx, r.db, id, "token", false)
}

func (r *tokenRepository) FindByRefreshToken(ctx context.Context, refresh string) (*model.Token, error) {
	return findBy[model.Token](ctx, r.db, "token", "refresh_token = ?", refresh)
}

func (r *tokenRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Token, error) {
	var tokens []model.Token
	if err := GetDB(ctx, r.db).Where("user_id = ?", userID).Order(insertionOrder).Find(&tokens).Error; err != nil {
		return nil, translateError(err, "token")
	}
	return tokens, nil
}

func (r *tokenRepository) ListExpired(ctx context.Context, t time.Time, limit int) ([]model.Token, error) {
	var tokens []model.Token
	q := GetDB(ctx, r.db).Where("refresh_expires_at < ?", t).Order(insertionOrder)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&tokens).Error; err != nil {
		return nil, translateError(err, "token")
	}
	return tokens, nil
}
