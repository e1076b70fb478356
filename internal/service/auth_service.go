package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/newsroom-auth/internal/model"
	"github.com/iliyamo/newsroom-auth/internal/queue"
	"github.com/iliyamo/newsroom-auth/internal/rbac"
	"github.com/iliyamo/newsroom-auth/internal/repository"
	"github.com/iliyamo/newsroom-auth/internal/utils"
)

// AuthConfig holds the account lifecycle parameters.
type AuthConfig struct {
	BcryptCost       int
	DefaultRole      string
	VerificationTTL  time.Duration
	ResetTTL         time.Duration
	MaxLoginAttempts int
	LockDuration     time.Duration
	// BaseURL prefixes the links put into verification and reset mails.
	BaseURL string
	Policy  utils.PasswordPolicy
}

// DefaultAuthConfig returns the production lifecycle settings.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		BcryptCost:       12,
		DefaultRole:      "public",
		VerificationTTL:  24 * time.Hour,
		ResetTTL:         time.Hour,
		MaxLoginAttempts: 5,
		LockDuration:     15 * time.Minute,
		Policy:           utils.DefaultPasswordPolicy(8),
	}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Email       string
	Password    string
	Username    string
	FirstName   string
	LastName    string
	DisplayName string
}

// LoginInput is the login form.  MFACode may hold a TOTP or a backup code.
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	MFACode    string
}

// LoginResult is either an issued token pair or, for MFA accounts without a
// code, MFARequired with no tokens.
type LoginResult struct {
	MFARequired bool
	User        *model.PublicUser
	Tokens      *TokenPair
	Remember    bool
}

// AuthService is the account lifecycle: pending -> active, lockout,
// verification and password reset.
type AuthService struct {
	Cfg    AuthConfig
	Users  UserStore
	Roles  RoleStore
	Tokens *TokenService
	MFA    *MFAService
	Mailer Mailer
	Now    Clock
	Logger *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(cfg AuthConfig, users UserStore, roles RoleStore, tokens *TokenService, mfaSvc *MFAService, mailer Mailer, logger *zap.Logger) *AuthService {
	return &AuthService{Cfg: cfg, Users: users, Roles: roles, Tokens: tokens, MFA: mfaSvc, Mailer: mailer, Logger: logger}
}

// Register creates a pending user with the default role and publishes a
// verification mail.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.PublicUser, error) {
	in.Email = repository.NormalizeEmail(in.Email)
	in.Username = repository.NormalizeUsername(in.Username)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	verr := &ValidationError{}
	verr.Check("email", utils.ValidateEmail(in.Email))
	verr.Check("username", utils.ValidateUsername(in.Username))
	verr.Check("first_name", utils.ValidateName("first_name", in.FirstName))
	verr.Check("last_name", utils.ValidateName("last_name", in.LastName))
	if check := s.Cfg.Policy.Validate(in.Password); !check.IsValid {
		for _, msg := range check.Errors {
			verr.Add("password", msg)
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	emailTaken, usernameTaken, err := s.Users.Taken(ctx, in.Email, in.Username)
	if err != nil {
		return nil, err
	}
	if emailTaken {
		return nil, ErrEmailTaken
	}
	if usernameTaken {
		return nil, ErrUsernameTaken
	}

	hash, err := utils.HashPassword(in.Password, s.Cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	raw, err := utils.RandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("verification token: %w", err)
	}
	tokenHash := utils.HashToken(raw)
	now := s.Now.now()

	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = in.FirstName + " " + in.LastName
	}
	u := &model.User{
		Email:                 in.Email,
		Username:              in.Username,
		PasswordHash:          hash,
		FirstName:             in.FirstName,
		LastName:              in.LastName,
		DisplayName:           display,
		Status:                model.StatusPending,
		VerificationTokenHash: &tokenHash,
		VerificationSentAt:    &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailTaken
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	if err := s.Roles.AssignRole(ctx, u.ID, s.Cfg.DefaultRole, now); err != nil {
		return nil, fmt.Errorf("assign default role: %w", err)
	}

	s.sendVerification(ctx, u, raw, now)
	s.Logger.Info("user registered", zap.Uint64("user_id", u.ID))
	pub := u.Public(s.Cfg.DefaultRole)
	return &pub, nil
}

// VerifyEmail activates the account holding token if it was issued less
// than VerificationTTL ago.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*model.PublicUser, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	hash := utils.HashToken(token)
	u, err := s.Users.GetByVerificationHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	now := s.Now.now()
	if u.VerificationSentAt == nil || now.After(u.VerificationSentAt.Add(s.Cfg.VerificationTTL)) {
		return nil, ErrInvalidToken
	}
	if err := s.Users.Activate(ctx, u.ID, hash, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	role, err := s.ensureRole(ctx, u.ID, now)
	if err != nil {
		return nil, err
	}
	u.Status = model.StatusActive
	u.VerificationTokenHash = nil
	u.VerificationSentAt = nil
	s.Logger.Info("email verified", zap.Uint64("user_id", u.ID))
	pub := u.Public(role)
	return &pub, nil
}

// ensureRole gives the user the default role if they hold none and returns
// the primary role.
func (s *AuthService) ensureRole(ctx context.Context, userID uint64, now time.Time) (string, error) {
	roles, err := s.Roles.RolesForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(roles) > 0 {
		return roles[0].Name, nil
	}
	if err := s.Roles.AssignRole(ctx, userID, s.Cfg.DefaultRole, now); err != nil {
		return "", fmt.Errorf("assign default role: %w", err)
	}
	return s.Cfg.DefaultRole, nil
}

// Login authenticates email and password, then the second factor for MFA
// accounts.  Checks run in this order: unknown user or locked account,
// password, status, second factor.  Wrong passwords and wrong second
// factors both count towards the lockout.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(in.Email) == "" {
		verr.Add("email", "email is required")
	}
	if in.Password == "" {
		verr.Add("password", "password is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	u, err := s.Users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Equalise timing with the known-user path.
			utils.VerifyPassword(s.dummy(), in.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	now := s.Now.now()
	if u.IsLocked(now) {
		return nil, ErrAccountLocked
	}
	if !utils.VerifyPassword(u.PasswordHash, in.Password) {
		if err := s.recordFailure(ctx, u.ID, now); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}
	if u.Status != model.StatusActive {
		return nil, ErrAccountNotActive
	}

	if u.MFAEnabled {
		code := strings.TrimSpace(in.MFACode)
		if code == "" {
			return &LoginResult{MFARequired: true}, nil
		}
		ok, err := s.MFA.Check(ctx, u, code)
		if err != nil {
			return nil, err
		}
		if !ok {
			if err := s.recordFailure(ctx, u.ID, now); err != nil {
				return nil, err
			}
			return nil, ErrMFACodeRejected
		}
	}

	if err := s.Users.RecordLoginSuccess(ctx, u.ID, now); err != nil {
		return nil, err
	}
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now

	pair, p, err := s.Tokens.Issue(ctx, u, in.RememberMe)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("login succeeded", zap.Uint64("user_id", u.ID), zap.Bool("mfa", u.MFAEnabled))
	pub := u.Public(p.Role)
	return &LoginResult{User: &pub, Tokens: pair, Remember: in.RememberMe}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, userID uint64, now time.Time) error {
	err := s.Users.RecordLoginFailure(ctx, userID, s.Cfg.MaxLoginAttempts, now.Add(s.Cfg.LockDuration), now)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := utils.HashPassword("newsroom-dummy-password", s.Cfg.BcryptCost)
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// RequestPasswordReset issues a reset token and mails it when the address
// belongs to an active or pending account.  The outcome is never reported:
// every well-formed email gets the same nil result.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if err := utils.ValidateEmail(email); err != nil {
		verr := &ValidationError{}
		verr.Check("email", err)
		return verr
	}
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.Logger.Error("password reset lookup failed", zap.Error(err))
		}
		return nil
	}
	if u.Status == model.StatusSuspended {
		return nil
	}

	raw, err := utils.RandomToken(32)
	if err != nil {
		s.Logger.Error("password reset token failed", zap.Error(err))
		return nil
	}
	now := s.Now.now()
	expires := now.Add(s.Cfg.ResetTTL)
	if err := s.Users.SetResetToken(ctx, u.ID, utils.HashToken(raw), expires, now); err != nil {
		s.Logger.Error("password reset store failed", zap.Uint64("user_id", u.ID), zap.Error(err))
		return nil
	}
	s.publish(ctx, queue.MailEvent{
		Type:        queue.MailPasswordResetRequested,
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.DisplayName,
		Token:       raw,
		Link:        s.link("/reset-password", raw),
		ExpiresAt:   &expires,
		RequestedAt: now,
	})
	return nil
}

// ResetPassword consumes a reset token and sets a new password.  The
// account's lockout is cleared and every refresh token revoked.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	hash := utils.HashToken(token)
	u, err := s.Users.GetByResetHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	now := s.Now.now()
	if u.ResetExpiresAt == nil || !now.Before(*u.ResetExpiresAt) {
		return ErrInvalidOrExpiredToken
	}
	if err := s.checkPolicy(password); err != nil {
		return err
	}

	pwHash, err := utils.HashPassword(password, s.Cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.Users.ResetPassword(ctx, u.ID, hash, pwHash, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	s.afterPasswordChange(ctx, u, now)
	return nil
}

// ResendVerification issues a new verification token for pending accounts.
// Unknown and already verified addresses are silently ignored.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	if err := utils.ValidateEmail(email); err != nil {
		verr := &ValidationError{}
		verr.Check("email", err)
		return verr
	}
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if u.Status != model.StatusPending {
		return nil
	}
	raw, err := utils.RandomToken(32)
	if err != nil {
		return fmt.Errorf("verification token: %w", err)
	}
	now := s.Now.now()
	if err := s.Users.SetVerificationToken(ctx, u.ID, utils.HashToken(raw), now); err != nil {
		return err
	}
	s.sendVerification(ctx, u, raw, now)
	return nil
}

// ChangePassword replaces the password of a signed-in user after checking
// the current one.  Other sessions are logged out.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint64, current, next string) error {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return mapUserErr(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return ErrWrongPassword
	}
	if err := s.checkPolicy(next); err != nil {
		return err
	}
	hash, err := utils.HashPassword(next, s.Cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.Now.now()
	if err := s.Users.UpdatePassword(ctx, u.ID, hash, now); err != nil {
		return err
	}
	s.afterPasswordChange(ctx, u, now)
	return nil
}

// Logout revokes one refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.Tokens.Revoke(ctx, refreshToken)
}

// LogoutAll revokes every refresh token of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uint64) (int64, error) {
	return s.Tokens.RevokeAll(ctx, userID)
}

// Profile returns the public view of the principal's account.
func (s *AuthService) Profile(ctx context.Context, p *rbac.Principal) (*model.PublicUser, error) {
	u, err := s.Users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	pub := u.Public(p.Role)
	return &pub, nil
}

func (s *AuthService) checkPolicy(password string) error {
	check := s.Cfg.Policy.Validate(password)
	if check.IsValid {
		return nil
	}
	verr := &ValidationError{}
	for _, msg := range check.Errors {
		verr.Add("password", msg)
	}
	return verr
}

func (s *AuthService) afterPasswordChange(ctx context.Context, u *model.User, now time.Time) {
	if n, err := s.Tokens.RevokeAll(ctx, u.ID); err != nil {
		s.Logger.Error("revoke sessions after password change failed", zap.Uint64("user_id", u.ID), zap.Error(err))
	} else {
		s.Logger.Info("password changed", zap.Uint64("user_id", u.ID), zap.Int64("sessions_revoked", n))
	}
	s.publish(ctx, queue.MailEvent{
		Type:        queue.MailPasswordChanged,
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.DisplayName,
		RequestedAt: now,
	})
}

func (s *AuthService) sendVerification(ctx context.Context, u *model.User, raw string, now time.Time) {
	expires := now.Add(s.Cfg.VerificationTTL)
	s.publish(ctx, queue.MailEvent{
		Type:        queue.MailVerificationRequested,
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.DisplayName,
		Token:       raw,
		Link:        s.link("/verify-email", raw),
		ExpiresAt:   &expires,
		RequestedAt: now,
	})
}

// publish hands ev to the mailer.  Delivery problems never fail the
// account operation that triggered them.
func (s *AuthService) publish(ctx context.Context, ev queue.MailEvent) {
	if s.Mailer == nil {
		return
	}
	if err := s.Mailer.Publish(ctx, ev); err != nil {
		s.Logger.Warn("mail trigger failed",
			zap.String("type", string(ev.Type)), zap.Uint64("user_id", ev.UserID), zap.Error(err))
	}
}

func (s *AuthService) link(path, token string) string {
	return strings.TrimRight(s.Cfg.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}
