package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/newsroom-auth/internal/model"
	"github.com/iliyamo/newsroom-auth/internal/rbac"
	"github.com/iliyamo/newsroom-auth/internal/repository"
	"github.com/iliyamo/newsroom-auth/internal/utils"
)

// TokenConfig sets token signing and lifetimes.
type TokenConfig struct {
	Secret    []byte
	AccessTTL time.Duration
	// RememberTTL applies to refresh tokens issued with "remember me",
	// SessionTTL to all others.  Rotation keeps the original choice.
	RememberTTL time.Duration
	SessionTTL  time.Duration
}

// TokenPair is what a successful login or refresh hands to the client.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	ExpiresIn        int       `json:"expires_in"`
	TokenType        string    `json:"token_type"`
}

// TokenService mints access tokens and rotates refresh tokens.
type TokenService struct {
	Cfg    TokenConfig
	Users  UserStore
	Tokens TokenStore
	Roles  RoleStore
	Now    Clock
	Logger *zap.Logger
}

func NewTokenService(cfg TokenConfig, users UserStore, tokens TokenStore, roles RoleStore, logger *zap.Logger) *TokenService {
	return &TokenService{Cfg: cfg, Users: users, Tokens: tokens, Roles: roles, Logger: logger}
}

// Principal resolves the role and permission set of u.  The primary role is
// the first one assigned; a user without roles gets no permissions.
func (s *TokenService) Principal(ctx context.Context, u *model.User) (*rbac.Principal, error) {
	p := &rbac.Principal{UserID: u.ID, Email: u.Email, Permissions: rbac.Set{}}
	roles, err := s.Roles.RolesForUser(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	if len(roles) == 0 {
		return p, nil
	}
	p.Role = roles[0].Name
	perms, err := s.Roles.PermissionsForRole(ctx, roles[0].ID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	p.Permissions = perms
	return p, nil
}

// Issue mints an access token for u and persists a new refresh token.
func (s *TokenService) Issue(ctx context.Context, u *model.User, remember bool) (*TokenPair, *rbac.Principal, error) {
	p, err := s.Principal(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	now := s.Now.now()

	access, err := utils.NewAccessToken(s.Cfg.Secret, u.ID, utils.AccessClaims{
		Email:       p.Email,
		Role:        p.Role,
		Permissions: p.Permissions.Strings(),
	}, now, s.Cfg.AccessTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("issue access token: %w", err)
	}

	ttl := s.Cfg.SessionTTL
	if remember {
		ttl = s.Cfg.RememberTTL
	}
	refresh, err := utils.NewRefreshToken(now, ttl)
	if err != nil {
		return nil, nil, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.Tokens.StoreRefresh(ctx, &model.RefreshToken{
		UserID:     u.ID,
		TokenHash:  utils.HashToken(refresh.Raw),
		Persistent: remember,
		ExpiresAt:  refresh.Exp,
		CreatedAt:  now,
	}); err != nil {
		return nil, nil, err
	}

	return &TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.Exp,
		ExpiresIn:        int(s.Cfg.AccessTTL / time.Second),
		TokenType:        "Bearer",
	}, p, nil
}

// Refresh exchanges a refresh token for a new pair.  The presented token is
// revoked by a single conditional update before anything is issued, so a
// token can be rotated at most once.  Unknown, revoked and expired tokens
// all fail with ErrInvalidRefresh.
func (s *TokenService) Refresh(ctx context.Context, raw string) (*TokenPair, *model.User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil, ErrInvalidRefresh
	}
	now := s.Now.now()

	t, err := s.Tokens.ClaimRefresh(ctx, utils.HashToken(raw), now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrConflict) {
			return nil, nil, ErrInvalidRefresh
		}
		return nil, nil, err
	}
	if !now.Before(t.ExpiresAt) {
		return nil, nil, ErrInvalidRefresh
	}

	u, err := s.Users.GetByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidRefresh
		}
		return nil, nil, err
	}
	if u.Status != model.StatusActive || u.IsLocked(now) {
		return nil, nil, ErrInvalidRefresh
	}

	pair, p, err := s.Issue(ctx, u, t.Persistent)
	if err != nil {
		return nil, nil, err
	}
	s.Logger.Debug("refresh token rotated", zap.Uint64("user_id", u.ID), zap.String("role", p.Role))
	return pair, u, nil
}

// Revoke invalidates a refresh token.  Unknown and already revoked tokens
// are ignored.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return s.Tokens.RevokeByHash(ctx, utils.HashToken(raw), s.Now.now())
}

// RevokeAll invalidates every live refresh token of a user.
func (s *TokenService) RevokeAll(ctx context.Context, userID uint64) (int64, error) {
	return s.Tokens.RevokeAllForUser(ctx, userID, s.Now.now())
}

// Verify checks an access token and returns the principal it carries.
// Every failure is ErrUnauthenticated.
func (s *TokenService) Verify(raw string) (*rbac.Principal, error) {
	claims, err := utils.ParseAccessToken(s.Cfg.Secret, raw, s.Now.now())
	if err != nil {
		return nil, ErrUnauthenticated
	}
	id, err := claims.UserID()
	if err != nil || id == 0 {
		return nil, ErrUnauthenticated
	}
	return &rbac.Principal{
		UserID:      id,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: rbac.ParseSet(claims.Permissions),
	}, nil
}

// Cleanup deletes refresh tokens that expired or were revoked longer than
// retention ago.
func (s *TokenService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return s.Tokens.DeleteStale(ctx, s.Now.now().Add(-retention))
}
