package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/newsroom-auth/internal/repository"
)

// RoleView is a role with its resolved permissions.
type RoleView struct {
	Name        string   `json:"name"`
	Level       int      `json:"level"`
	Permissions []string `json:"permissions"`
}

// RoleService lists roles and manages assignments.
type RoleService struct {
	Roles  RoleStore
	Users  UserStore
	Now    Clock
	Logger *zap.Logger
}

func NewRoleService(roles RoleStore, users UserStore, logger *zap.Logger) *RoleService {
	return &RoleService{Roles: roles, Users: users, Logger: logger}
}

// List returns every role, highest level first.
func (s *RoleService) List(ctx context.Context) ([]RoleView, error) {
	roles, err := s.Roles.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoleView, 0, len(roles))
	for _, r := range roles {
		perms, err := s.Roles.PermissionsForRole(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, RoleView{Name: r.Name, Level: r.Level, Permissions: perms.Strings()})
	}
	return out, nil
}

// Assign gives userID the named role.  With replace, every other role is
// removed so the assigned one becomes the primary role.  Changes show up in
// access tokens minted afterwards.
func (s *RoleService) Assign(ctx context.Context, userID uint64, roleName string, replace bool) ([]string, error) {
	roleName = strings.TrimSpace(roleName)
	if _, err := s.Users.GetByID(ctx, userID); err != nil {
		return nil, mapUserErr(err)
	}
	if _, err := s.Roles.GetByName(ctx, roleName); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			verr := &ValidationError{}
			verr.Add("role", "unknown role")
			return nil, verr
		}
		return nil, err
	}

	assign := s.Roles.AssignRole
	if replace {
		assign = s.Roles.ReplaceRoles
	}
	if err := assign(ctx, userID, roleName, s.Now.now()); err != nil {
		return nil, err
	}
	s.Logger.Info("role assigned", zap.Uint64("user_id", userID), zap.String("role", roleName), zap.Bool("replace", replace))
	return s.UserRoles(ctx, userID)
}

// Revoke removes roleName from the user.  A user keeps at least one role:
// revoking the last one is refused.
func (s *RoleService) Revoke(ctx context.Context, userID uint64, roleName string) ([]string, error) {
	roleName = strings.TrimSpace(roleName)
	if _, err := s.Users.GetByID(ctx, userID); err != nil {
		return nil, mapUserErr(err)
	}
	current, err := s.UserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := false
	for _, name := range current {
		held = held || name == roleName
	}
	if !held {
		return nil, ErrRoleNotAssigned
	}
	if len(current) == 1 {
		return nil, ErrLastRole
	}
	if err := s.Roles.RevokeRole(ctx, userID, roleName); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotAssigned
		}
		return nil, err
	}
	s.Logger.Info("role revoked", zap.Uint64("user_id", userID), zap.String("role", roleName))
	return s.UserRoles(ctx, userID)
}

// UserRoles lists the user's role names, primary first.
func (s *RoleService) UserRoles(ctx context.Context, userID uint64) ([]string, error) {
	roles, err := s.Roles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names, nil
}
