package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/newsroom-auth/internal/mfa"
	"github.com/iliyamo/newsroom-auth/internal/model"
	"github.com/iliyamo/newsroom-auth/internal/repository"
	"github.com/iliyamo/newsroom-auth/internal/utils"
)

// MFASetup is returned once by Setup; backup codes are never shown again.
type MFASetup struct {
	Secret      string   `json:"secret"`
	URL         string   `json:"otpauth_url"`
	QRCode      string   `json:"qr_code"`
	BackupCodes []string `json:"backup_codes"`
}

// MFAService runs the two-step TOTP enrolment and checks second factors.
type MFAService struct {
	Engine *mfa.Engine
	Users  UserStore
	Now    Clock
	Logger *zap.Logger
}

func NewMFAService(engine *mfa.Engine, users UserStore, logger *zap.Logger) *MFAService {
	return &MFAService{Engine: engine, Users: users, Logger: logger}
}

// Setup stores a fresh, unconfirmed secret and backup codes.  Calling it
// again before Enable replaces both.
func (s *MFAService) Setup(ctx context.Context, userID uint64) (*MFASetup, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	if u.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	enr, err := s.Engine.GenerateSecret(u.Email)
	if err != nil {
		return nil, err
	}
	codes, err := s.Engine.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	hashes, err := s.Engine.HashBackupCodes(codes)
	if err != nil {
		return nil, err
	}
	if err := s.Users.SetMFASecret(ctx, u.ID, enr.Secret, hashes, s.Now.now()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrMFAAlreadyEnabled
		}
		return nil, err
	}
	return &MFASetup{Secret: enr.Secret, URL: enr.URL, QRCode: enr.QRCode, BackupCodes: codes}, nil
}

// Enable confirms the pending secret with a current TOTP code.
func (s *MFAService) Enable(ctx context.Context, userID uint64, code string) error {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return mapUserErr(err)
	}
	if u.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	if u.MFASecret == nil {
		return ErrMFANotSetUp
	}
	ok, err := s.Engine.VerifyCode(*u.MFASecret, code, s.Now.now())
	if err != nil {
		return fmt.Errorf("verify mfa code: %w", err)
	}
	if !ok {
		return ErrInvalidMFACode
	}
	if err := s.Users.EnableMFA(ctx, u.ID, *u.MFASecret, s.Now.now()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Secret replaced or MFA enabled by a concurrent request.
			return ErrInvalidMFACode
		}
		return err
	}
	s.Logger.Info("mfa enabled", zap.Uint64("user_id", u.ID))
	return nil
}

// Disable turns MFA off after re-checking the account password.
func (s *MFAService) Disable(ctx context.Context, userID uint64, password string) error {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return mapUserErr(err)
	}
	if !u.MFAEnabled {
		return ErrMFANotEnabled
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return ErrWrongPassword
	}
	if err := s.Users.DisableMFA(ctx, u.ID, s.Now.now()); err != nil {
		return err
	}
	s.Logger.Info("mfa disabled", zap.Uint64("user_id", u.ID))
	return nil
}

// Check verifies a login second factor: a TOTP code, or else one of the
// user's backup codes, which is consumed on success.
func (s *MFAService) Check(ctx context.Context, u *model.User, code string) (bool, error) {
	if !u.MFAEnabled || u.MFASecret == nil {
		return false, nil
	}
	if s.Engine.LooksLikeTOTP(code) {
		return s.Engine.VerifyCode(*u.MFASecret, code, s.Now.now())
	}

	idx := s.Engine.MatchBackupCode(u.BackupCodes, code)
	if idx < 0 {
		return false, nil
	}
	remaining := make([]string, 0, len(u.BackupCodes)-1)
	remaining = append(remaining, u.BackupCodes[:idx]...)
	remaining = append(remaining, u.BackupCodes[idx+1:]...)
	if err := s.Users.ReplaceBackupCodes(ctx, u.ID, u.BackupCodes, remaining, s.Now.now()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	s.Logger.Info("backup code used", zap.Uint64("user_id", u.ID), zap.Int("remaining", len(remaining)))
	return true, nil
}

func mapUserErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
