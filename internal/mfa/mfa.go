// Package mfa implements TOTP second factors and their backup codes.
package mfa

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const (
	backupAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	qrSize         = 200
)

// ErrNoSecret is returned when a code is checked against an empty secret.
var ErrNoSecret = errors.New("mfa: no secret configured")

// Engine holds the TOTP parameters shared by enrolment and verification.
type Engine struct {
	Issuer string
	Period uint
	// Skew is the number of periods accepted on either side of now.
	Skew   uint
	Digits otp.Digits

	BackupCodeCount  int
	BackupCodeLength int
	// BackupCost is the bcrypt cost for backup code hashes.
	BackupCost int
}

// NewEngine returns an Engine with 30 second steps, a ±1 step window,
// six digits and ten backup codes of ten characters.
func NewEngine(issuer string) *Engine {
	return &Engine{
		Issuer:           issuer,
		Period:           30,
		Skew:             1,
		Digits:           otp.DigitsSix,
		BackupCodeCount:  10,
		BackupCodeLength: 10,
		BackupCost:       bcrypt.DefaultCost,
	}
}

// Enrollment is what a user needs to add the account to an authenticator app.
type Enrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
	QRCode string `json:"qr_code"` // data:image/png;base64,...
}

// GenerateSecret creates a new shared secret for accountLabel (normally the
// user's email) together with its otpauth URI and a PNG QR code.
func (e *Engine) GenerateSecret(accountLabel string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: accountLabel,
		Period:      e.Period,
		Digits:      e.Digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}

	return &Enrollment{
		Secret: key.Secret(),
		URL:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

func (e *Engine) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    e.Period,
		Skew:      e.Skew,
		Digits:    e.Digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// VerifyCode reports whether code is valid for secret at the given instant.
func (e *Engine) VerifyCode(secret, code string, at time.Time) (bool, error) {
	if secret == "" {
		return false, ErrNoSecret
	}
	code = strings.TrimSpace(code)
	if len(code) != e.Digits.Length() {
		return false, nil
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), e.validateOpts())
	if err != nil {
		// Malformed codes are just wrong codes.
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, fmt.Errorf("validate totp: %w", err)
	}
	return ok, nil
}

// Code returns the current code for secret.  Used by tests and tooling.
func (e *Engine) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at.UTC(), e.validateOpts())
}

// GenerateBackupCodes returns fresh single-use recovery codes.
func (e *Engine) GenerateBackupCodes() ([]string, error) {
	codes := make([]string, e.BackupCodeCount)
	max := big.NewInt(int64(len(backupAlphabet)))
	for i := range codes {
		var sb strings.Builder
		for j := 0; j < e.BackupCodeLength; j++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, fmt.Errorf("generate backup code: %w", err)
			}
			sb.WriteByte(backupAlphabet[n.Int64()])
		}
		codes[i] = sb.String()
	}
	return codes, nil
}

// HashBackupCodes bcrypt-hashes codes in order.
func (e *Engine) HashBackupCodes(codes []string) ([]string, error) {
	hashes := make([]string, len(codes))
	for i, c := range codes {
		h, err := bcrypt.GenerateFromPassword([]byte(normalizeBackupCode(c)), e.BackupCost)
		if err != nil {
			return nil, fmt.Errorf("hash backup code: %w", err)
		}
		hashes[i] = string(h)
	}
	return hashes, nil
}

// MatchBackupCode returns the index of the hash matching code, or -1.
func (e *Engine) MatchBackupCode(hashes []string, code string) int {
	code = normalizeBackupCode(code)
	if code == "" {
		return -1
	}
	for i, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(code)) == nil {
			return i
		}
	}
	return -1
}

// LooksLikeTOTP reports whether code has the shape of a TOTP code rather
// than a backup code.
func (e *Engine) LooksLikeTOTP(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != e.Digits.Length() {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}
