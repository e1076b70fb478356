package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/newsroom-auth/internal/model"
)

const userColumns = `id, email, username, password_hash, first_name, last_name, display_name,
	status, login_attempts, locked_until, mfa_enabled, mfa_secret, mfa_backup_codes,
	verification_token_hash, verification_sent_at, reset_token_hash, reset_expires_at,
	last_login_at, created_at, updated_at`

// UserRepo persists identity records in the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NormalizeEmail trims and lower-cases an address; every lookup and insert
// goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername trims and lower-cases a username so uniqueness does not
// depend on the column collation of the backing database.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                                     model.User
		status                                string
		lockedUntil, verSentAt, resetExp      sql.NullTime
		lastLogin                             sql.NullTime
		mfaSecret, backup, verHash, resetHash sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.DisplayName,
		&status, &u.LoginAttempts, &lockedUntil, &u.MFAEnabled, &mfaSecret, &backup,
		&verHash, &verSentAt, &resetHash, &resetExp,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Status = model.UserStatus(status)
	u.LockedUntil = timePtr(lockedUntil)
	u.VerificationSentAt = timePtr(verSentAt)
	u.ResetExpiresAt = timePtr(resetExp)
	u.LastLoginAt = timePtr(lastLogin)
	u.MFASecret = stringPtr(mfaSecret)
	u.VerificationTokenHash = stringPtr(verHash)
	u.ResetTokenHash = stringPtr(resetHash)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	if backup.Valid && backup.String != "" {
		if err := json.Unmarshal([]byte(backup.String), &u.BackupCodes); err != nil {
			return nil, fmt.Errorf("decode backup codes: %w", err)
		}
	}
	return &u, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// Create inserts u (pending, with its verification token hash) and sets
// u.ID.  Duplicate email or username map to ErrEmailExists /
// ErrUsernameExists.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = NormalizeEmail(u.Email)
	u.Username = NormalizeUsername(u.Username)
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (email, username, password_hash, first_name, last_name, display_name,
			status, login_attempts, mfa_enabled, verification_token_hash, verification_sent_at,
			created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,0,0,?,?,?,?)`,
		u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.DisplayName,
		string(u.Status), u.VerificationTokenHash, u.VerificationSentAt,
		u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			if violatesUsernameKey(err) {
				return ErrUsernameExists
			}
			return ErrEmailExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert user id: %w", err)
	}
	u.ID = uint64(id)
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email)))
}

// GetByVerificationHash fetches the user holding an email verification token.
func (r *UserRepo) GetByVerificationHash(ctx context.Context, hash string) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE verification_token_hash=? LIMIT 1", hash))
}

// GetByResetHash fetches the user holding a password reset token.
func (r *UserRepo) GetByResetHash(ctx context.Context, hash string) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE reset_token_hash=? LIMIT 1", hash))
}

// Taken reports whether the email or the username is already registered.
func (r *UserRepo) Taken(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error) {
	email, username = NormalizeEmail(email), NormalizeUsername(username)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT email, username FROM users WHERE email=? OR username=?",
		email, username)
	if err != nil {
		return false, false, fmt.Errorf("query taken: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var e, u string
		if err := rows.Scan(&e, &u); err != nil {
			return false, false, fmt.Errorf("scan taken: %w", err)
		}
		emailTaken = emailTaken || e == email
		usernameTaken = usernameTaken || u == username
	}
	return emailTaken, usernameTaken, rows.Err()
}

// RecordLoginFailure counts one failed login in a single UPDATE so that
// concurrent failures cannot lose increments.  When the counter reaches
// maxAttempts the account is locked until lockUntil and the counter restarts
// at zero.  locked_until is assigned first: MySQL evaluates SET clauses left
// to right, SQLite against the old row, and both then see the old counter.
func (r *UserRepo) RecordLoginFailure(ctx context.Context, id uint64, maxAttempts int, lockUntil, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET
			locked_until = CASE WHEN login_attempts + 1 >= ? THEN ? ELSE locked_until END,
			login_attempts = CASE WHEN login_attempts + 1 >= ? THEN 0 ELSE login_attempts + 1 END,
			updated_at = ?
		 WHERE id = ?`,
		maxAttempts, lockUntil.UTC(), maxAttempts, now.UTC(), id)
	return mustAffect(res, err, "record login failure")
}

// RecordLoginSuccess clears the failure counter and lock and stamps the
// last login.
func (r *UserRepo) RecordLoginSuccess(ctx context.Context, id uint64, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET login_attempts=0, locked_until=NULL, last_login_at=?, updated_at=? WHERE id=?`,
		now.UTC(), now.UTC(), id)
	return mustAffect(res, err, "record login success")
}

// Activate redeems an email verification token.  The update only applies
// while the row still holds tokenHash, so a token is consumed at most once.
func (r *UserRepo) Activate(ctx context.Context, id uint64, tokenHash string, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET status=?, verification_token_hash=NULL, verification_sent_at=NULL, updated_at=?
		 WHERE id=? AND verification_token_hash=?`,
		string(model.StatusActive), now.UTC(), id, tokenHash)
	return mustAffectConflict(res, err, "activate user")
}

// SetVerificationToken stores a new verification token hash, replacing any
// previous one.
func (r *UserRepo) SetVerificationToken(ctx context.Context, id uint64, tokenHash string, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET verification_token_hash=?, verification_sent_at=?, updated_at=? WHERE id=?`,
		tokenHash, now.UTC(), now.UTC(), id)
	return mustAffect(res, err, "set verification token")
}

// SetResetToken stores a password reset token hash valid until expiresAt.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, tokenHash string, expiresAt, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET reset_token_hash=?, reset_expires_at=?, updated_at=? WHERE id=?`,
		tokenHash, expiresAt.UTC(), now.UTC(), id)
	return mustAffect(res, err, "set reset token")
}

// ResetPassword consumes a reset token: the new hash is written and the
// token and lockout state cleared only while the row still holds tokenHash.
func (r *UserRepo) ResetPassword(ctx context.Context, id uint64, tokenHash, passwordHash string, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=?, reset_token_hash=NULL, reset_expires_at=NULL,
			login_attempts=0, locked_until=NULL, updated_at=?
		 WHERE id=? AND reset_token_hash=?`,
		passwordHash, now.UTC(), id, tokenHash)
	return mustAffectConflict(res, err, "reset password")
}

// UpdatePassword replaces the password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, passwordHash string, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=?, updated_at=? WHERE id=?`,
		passwordHash, now.UTC(), id)
	return mustAffect(res, err, "update password")
}

// SetMFASecret stores an unconfirmed TOTP secret with its backup code
// hashes.  Refused with ErrConflict once MFA is enabled: the secret is
// write-once until MFA is disabled.
func (r *UserRepo) SetMFASecret(ctx context.Context, id uint64, secret string, backupHashes []string, now time.Time) error {
	codes, err := json.Marshal(backupHashes)
	if err != nil {
		return fmt.Errorf("encode backup codes: %w", err)
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET mfa_secret=?, mfa_backup_codes=?, updated_at=? WHERE id=? AND mfa_enabled=0`,
		secret, string(codes), now.UTC(), id)
	return mustAffectConflict(res, err, "set mfa secret")
}

// EnableMFA confirms the pending secret.
func (r *UserRepo) EnableMFA(ctx context.Context, id uint64, secret string, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET mfa_enabled=1, updated_at=? WHERE id=? AND mfa_secret=? AND mfa_enabled=0`,
		now.UTC(), id, secret)
	return mustAffectConflict(res, err, "enable mfa")
}

// DisableMFA clears the secret and all backup codes.
func (r *UserRepo) DisableMFA(ctx context.Context, id uint64, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET mfa_enabled=0, mfa_secret=NULL, mfa_backup_codes=NULL, updated_at=? WHERE id=?`,
		now.UTC(), id)
	return mustAffect(res, err, "disable mfa")
}

// ReplaceBackupCodes swaps the stored backup code hashes from old to next.
// It fails with ErrConflict if another request changed them first, which
// makes redeeming a code single-use under concurrency.
func (r *UserRepo) ReplaceBackupCodes(ctx context.Context, id uint64, old, next []string, now time.Time) error {
	oldJSON, err := json.Marshal(old)
	if err != nil {
		return fmt.Errorf("encode backup codes: %w", err)
	}
	nextJSON, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode backup codes: %w", err)
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET mfa_backup_codes=?, updated_at=? WHERE id=? AND mfa_backup_codes=?`,
		string(nextJSON), now.UTC(), id, string(oldJSON))
	return mustAffectConflict(res, err, "replace backup codes")
}

// SetStatus changes the lifecycle status (admin suspension).
func (r *UserRepo) SetStatus(ctx context.Context, id uint64, status model.UserStatus, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET status=?, updated_at=? WHERE id=?`, string(status), now.UTC(), id)
	return mustAffect(res, err, "set status")
}

// mustAffect turns "no row updated" into ErrNotFound.
func mustAffect(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// mustAffectConflict is mustAffect for compare-and-set updates, where "no
// row updated" means the expected state was gone.
func mustAffectConflict(res sql.Result, err error, op string) error {
	if err := mustAffect(res, err, op); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrConflict
		}
		return err
	}
	return nil
}
