package service

import (
	"context"
	"time"

	"github.com/iliyamo/newsroom-auth/internal/model"
	"github.com/iliyamo/newsroom-auth/internal/queue"
	"github.com/iliyamo/newsroom-auth/internal/rbac"
)

// UserStore is the credential store used by the services.
// *repository.UserRepo implements it.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByVerificationHash(ctx context.Context, hash string) (*model.User, error)
	GetByResetHash(ctx context.Context, hash string) (*model.User, error)
	Taken(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error)
	RecordLoginFailure(ctx context.Context, id uint64, maxAttempts int, lockUntil, now time.Time) error
	RecordLoginSuccess(ctx context.Context, id uint64, now time.Time) error
	Activate(ctx context.Context, id uint64, tokenHash string, now time.Time) error
	SetVerificationToken(ctx context.Context, id uint64, tokenHash string, now time.Time) error
	SetResetToken(ctx context.Context, id uint64, tokenHash string, expiresAt, now time.Time) error
	ResetPassword(ctx context.Context, id uint64, tokenHash, passwordHash string, now time.Time) error
	UpdatePassword(ctx context.Context, id uint64, passwordHash string, now time.Time) error
	SetMFASecret(ctx context.Context, id uint64, secret string, backupHashes []string, now time.Time) error
	EnableMFA(ctx context.Context, id uint64, secret string, now time.Time) error
	DisableMFA(ctx context.Context, id uint64, now time.Time) error
	ReplaceBackupCodes(ctx context.Context, id uint64, old, next []string, now time.Time) error
	SetStatus(ctx context.Context, id uint64, status model.UserStatus, now time.Time) error
}

// TokenStore persists refresh token hashes.  *repository.TokenRepo
// implements it.
type TokenStore interface {
	StoreRefresh(ctx context.Context, t *model.RefreshToken) error
	ClaimRefresh(ctx context.Context, tokenHash string, now time.Time) (*model.RefreshToken, error)
	RevokeByHash(ctx context.Context, tokenHash string, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID uint64, now time.Time) (int64, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// RoleStore resolves roles and permissions.  *repository.RoleRepo
// implements it.
type RoleStore interface {
	GetByName(ctx context.Context, name string) (*model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
	AssignRole(ctx context.Context, userID uint64, roleName string, now time.Time) error
	ReplaceRoles(ctx context.Context, userID uint64, roleName string, now time.Time) error
	RevokeRole(ctx context.Context, userID uint64, roleName string) error
	RolesForUser(ctx context.Context, userID uint64) ([]model.Role, error)
	PermissionsForRole(ctx context.Context, roleID uint64) (rbac.Set, error)
}

// Mailer publishes mail trigger events.  *queue.Publisher and
// queue.DirectPublisher implement it.
type Mailer interface {
	Publish(ctx context.Context, ev queue.MailEvent) error
}

// Clock returns the current time.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
