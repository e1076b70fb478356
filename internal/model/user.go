package model

import "time"

// UserStatus is the lifecycle state persisted in users.status.  A locked
// account is not a separate status: it is an active user whose
// LockedUntil lies in the future.
type UserStatus string

const (
	StatusPending   UserStatus = "pending"
	StatusActive    UserStatus = "active"
	StatusSuspended UserStatus = "suspended"
)

// User represents an identity record as stored in the `users` table.
// Each field corresponds to a column.  Secrets (password hash, MFA secret,
// backup code hashes, token hashes) never leave the service layer; handlers
// render the PublicUser projection instead.
//
// Fields:
//
//	ID                    – primary key, immutable.
//	Email                 – unique, lower-cased.
//	Username              – unique, lower-cased.
//	PasswordHash          – bcrypt hash.
//	Status                – pending | active | suspended.
//	LoginAttempts         – consecutive failed logins since the last success or lock.
//	LockedUntil           – logins are refused while this is in the future.
//	MFASecret             – base32 TOTP secret; set by setup, confirmed by MFAEnabled.
//	BackupCodes           – bcrypt hashes of unused backup codes.
//	VerificationTokenHash – SHA‑256 of the pending email verification token.
//	ResetTokenHash        – SHA‑256 of the pending password reset token.
type User struct {
	ID                    uint64     // users.id
	Email                 string     // users.email
	Username              string     // users.username
	PasswordHash          string     // users.password_hash
	FirstName             string     // users.first_name
	LastName              string     // users.last_name
	DisplayName           string     // users.display_name
	Status                UserStatus // users.status
	LoginAttempts         int        // users.login_attempts
	LockedUntil           *time.Time // users.locked_until (nullable)
	MFAEnabled            bool       // users.mfa_enabled
	MFASecret             *string    // users.mfa_secret (nullable)
	BackupCodes           []string   // users.mfa_backup_codes (JSON array of hashes)
	VerificationTokenHash *string    // users.verification_token_hash (nullable)
	VerificationSentAt    *time.Time // users.verification_sent_at (nullable)
	ResetTokenHash        *string    // users.reset_token_hash (nullable)
	ResetExpiresAt        *time.Time // users.reset_expires_at (nullable)
	LastLoginAt           *time.Time // users.last_login_at (nullable)
	CreatedAt             time.Time  // users.created_at
	UpdatedAt             time.Time  // users.updated_at
}

// IsLocked reports whether logins must be refused at the given instant.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// PublicUser is the externally visible part of a User.
type PublicUser struct {
	ID          uint64     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DisplayName string     `json:"display_name"`
	Status      UserStatus `json:"status"`
	Role        string     `json:"role,omitempty"`
	MFAEnabled  bool       `json:"mfa_enabled"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Public projects u without any credential material.
func (u *User) Public(role string) PublicUser {
	return PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName,
		Status:      u.Status,
		Role:        role,
		MFAEnabled:  u.MFAEnabled,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}
