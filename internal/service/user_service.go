package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/newsroom-auth/internal/model"
)

// UserService holds administrative operations on other users' accounts.
type UserService struct {
	Users  UserStore
	Roles  RoleStore
	Tokens *TokenService
	Now    Clock
	Logger *zap.Logger
}

func NewUserService(users UserStore, roles RoleStore, tokens *TokenService, logger *zap.Logger) *UserService {
	return &UserService{Users: users, Roles: roles, Tokens: tokens, Logger: logger}
}

// SetStatus moves a user between active and suspended.  Suspending revokes
// every refresh token the user holds.  Pending accounts only become active
// through email verification; an admin cannot change their own status.
func (s *UserService) SetStatus(ctx context.Context, actorID, userID uint64, status model.UserStatus) (*model.PublicUser, error) {
	verr := &ValidationError{}
	if status != model.StatusActive && status != model.StatusSuspended {
		verr.Add("status", "status must be active or suspended")
		return nil, verr
	}
	if actorID == userID {
		return nil, ErrOwnStatus
	}

	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	if u.Status == model.StatusPending && status == model.StatusActive {
		verr.Add("status", "pending accounts are activated through email verification")
		return nil, verr
	}

	if u.Status != status {
		if err := s.Users.SetStatus(ctx, userID, status, s.Now.now()); err != nil {
			return nil, mapUserErr(err)
		}
		u.Status = status
	}
	if status == model.StatusSuspended {
		n, err := s.Tokens.RevokeAll(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.Logger.Info("user suspended",
			zap.Uint64("user_id", userID), zap.Uint64("by", actorID), zap.Int64("revoked_tokens", n))
	} else {
		s.Logger.Info("user reactivated", zap.Uint64("user_id", userID), zap.Uint64("by", actorID))
	}

	role := ""
	roles, err := s.Roles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(roles) > 0 {
		role = roles[0].Name
	}
	pub := u.Public(role)
	return &pub, nil
}
