package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"orgadmin/internal/audit"
	"orgadmin/internal/model"
	"orgadmin/internal/repository"
	"orgadmin/pkg/apperror"
)

type LoginRequest struct {
	// Login is a username or an email address.
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken      string        `json:"access_token"`
	AccessExpiresAt  time.Time     `json:"access_expires_at"`
	RefreshToken     string        `json:"refresh_token"`
	RefreshExpiresAt time.Time     `json:"refresh_expires_at"`
	User             *UserResponse `json:"user,omitempty"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	TokenID        uuid.UUID
}

// AuthSettings configures token issuing.
type AuthSettings struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	// Logout revokes the caller's own token.
	Logout(ctx context.Context, principal Principal) error
	// Authenticate verifies an access token and that its session and user
	// are still live.
	Authenticate(ctx context.Context, accessToken string) (*Principal, error)
	// PurgeExpired soft-deletes up to limit tokens whose refresh window ended
	// before now. It returns how many were revoked.
	PurgeExpired(ctx context.Context, now time.Time, limit int) (int, error)
	audit.ActorResolver
}

type authService struct {
	users    repository.UserRepository
	tokens   repository.TokenRepository
	tx       repository.TransactionManager
	settings AuthSettings
}

func NewAuthService(users repository.UserRepository, tokens repository.TokenRepository, tx repository.TransactionManager, settings AuthSettings) AuthService {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &authService{users: users, tokens: tokens, tx: tx, settings: settings}
}

type accessClaims struct {
	OrganizationID string `json:"org"`
	jwt.RegisteredClaims
}

var errBadCredentials = apperror.Unauthenticated("invalid login or password")

func (s *authService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, req.Login)
	if apperror.KindOf(err) == apperror.KindNotFound {
		user, err = s.users.GetByEmail(ctx, req.Login)
	}
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errBadCredentials
	}

	// the session row is created by the user it belongs to
	ctx = audit.WithActor(ctx, user.ID)
	var res *TokenResponse
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		res, err = s.issue(txCtx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.User = mapToResponse(user, nil)
	return res, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, apperror.Unauthenticated("refresh token is missing")
	}
	old, err := s.tokens.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, apperror.Unauthenticated("refresh token is invalid or revoked")
		}
		return nil, err
	}
	if !s.settings.Now().Before(old.RefreshExpiresAt) {
		return nil, apperror.Unauthenticated("refresh token has expired")
	}
	user, err := s.users.GetByID(ctx, old.UserID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, apperror.Unauthenticated("user no longer exists")
		}
		return nil, err
	}

	ctx = audit.WithActor(ctx, user.ID)
	var res *TokenResponse
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		old.MarkDeleted()
		if err := s.tokens.Update(txCtx, old); err != nil {
			return err
		}
		var err error
		res, err = s.issue(txCtx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// issue stages a new session row and signs an access token whose jti is the
// row id.
func (s *authService) issue(ctx context.Context, user *model.User) (*TokenResponse, error) {
	now := s.settings.Now()
	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}
	tok := &model.Token{
		UserID:           user.ID,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.settings.AccessTTL),
		RefreshExpiresAt: now.Add(s.settings.RefreshTTL),
	}
	if err := s.tokens.Create(ctx, tok); err != nil {
		return nil, err
	}

	claims := accessClaims{
		OrganizationID: user.OrganizationID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        tok.ID.String(),
			Issuer:    s.settings.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(tok.AccessExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.settings.Secret)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("sign access token: %w", err))
	}
	tok.AccessToken = signed

	return &TokenResponse{
		AccessToken:      signed,
		AccessExpiresAt:  tok.AccessExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: tok.RefreshExpiresAt,
	}, nil
}

func (s *authService) Logout(ctx context.Context, principal Principal) error {
	ctx = audit.WithActor(ctx, principal.UserID)
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		tok, err := s.tokens.FindByID(txCtx, principal.TokenID)
		if err != nil {
			return err
		}
		if tok.UserID != principal.UserID {
			return apperror.Forbidden("token does not belong to the caller")
		}
		tok.MarkDeleted()
		return s.tokens.Update(txCtx, tok)
	})
}

func (s *authService) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims,
		func(*jwt.Token) (any, error) { return s.settings.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.settings.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.settings.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.Unauthenticated("access token has expired")
		}
		return nil, apperror.Unauthenticated("invalid access token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperror.Unauthenticated("invalid access token subject")
	}
	tokenID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, apperror.Unauthenticated("invalid access token id")
	}

	tok, err := s.tokens.FindByID(ctx, tokenID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, apperror.Unauthenticated("session has been revoked")
		}
		return nil, err
	}
	if tok.UserID != userID || tok.AccessToken != accessToken {
		return nil, apperror.Unauthenticated("session does not match access token")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, apperror.Unauthenticated("user no longer exists")
		}
		return nil, err
	}
	return &Principal{UserID: user.ID, OrganizationID: user.OrganizationID, TokenID: tok.ID}, nil
}

// ResolveActor maps a bearer credential to the acting user. An empty
// credential is anonymous.
func (s *authService) ResolveActor(ctx context.Context, credential string) (*uuid.UUID, error) {
	if credential == "" {
		return nil, nil
	}
	p, err := s.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	return &p.UserID, nil
}

func (s *authService) PurgeExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	var n int
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		expired, err := s.tokens.ListExpired(txCtx, now, limit)
		if err != nil {
			return err
		}
		for i := range expired {
			expired[i].MarkDeleted()
			if err := s.tokens.Update(txCtx, &expired[i]); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", apperror.Internal(fmt.Errorf("generate refresh token: %w", err))
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
