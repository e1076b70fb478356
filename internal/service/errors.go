// Package service implements account lifecycle, token issuance, MFA and
// role management on top of the repositories.
package service

import (
	"errors"
	"strings"
)

// Kind classifies service errors; handlers map a Kind to one HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindBadRequest
	KindConflict
	KindAuthentication
	KindAuthorization
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// Error is a known failure with a client-safe message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	// Same message for unknown email and wrong password.
	ErrInvalidCredentials = &Error{KindAuthentication, "invalid_credentials", "invalid email or password"}
	ErrAccountNotActive   = &Error{KindAuthentication, "account_not_active", "account is not active"}
	ErrAccountLocked      = &Error{KindAuthentication, "account_locked", "account is temporarily locked, try again later"}
	ErrMFACodeRejected    = &Error{KindAuthentication, "invalid_mfa_code", "invalid authentication code"}
	ErrUnauthenticated    = &Error{KindAuthentication, "unauthenticated", "authentication required"}
	ErrInvalidRefresh     = &Error{KindAuthentication, "invalid_refresh_token", "invalid or expired refresh token"}

	ErrInvalidToken          = &Error{KindBadRequest, "invalid_token", "invalid or expired verification token"}
	ErrInvalidOrExpiredToken = &Error{KindBadRequest, "invalid_or_expired_token", "invalid or expired reset token"}
	ErrInvalidMFACode        = &Error{KindBadRequest, "invalid_mfa_code", "invalid authentication code"}
	ErrWrongPassword         = &Error{KindBadRequest, "wrong_password", "password is incorrect"}
	ErrMFANotSetUp           = &Error{KindBadRequest, "mfa_not_set_up", "multi-factor authentication has not been set up"}
	ErrMFANotEnabled         = &Error{KindBadRequest, "mfa_not_enabled", "multi-factor authentication is not enabled"}

	ErrEmailTaken        = &Error{KindConflict, "email_taken", "email is already registered"}
	ErrUsernameTaken     = &Error{KindConflict, "username_taken", "username is already taken"}
	ErrMFAAlreadyEnabled = &Error{KindConflict, "mfa_already_enabled", "multi-factor authentication is already enabled"}
	ErrLastRole          = &Error{KindConflict, "last_role", "a user must keep at least one role"}

	ErrRoleNotAssigned = &Error{KindNotFound, "role_not_assigned", "user does not hold this role"}

	ErrForbidden    = &Error{KindAuthorization, "forbidden", "insufficient permissions"}
	ErrOwnStatus    = &Error{KindAuthorization, "own_status", "you cannot change your own status"}
	ErrUserNotFound = &Error{KindNotFound, "user_not_found", "user not found"}
)

// FieldError is one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level input problems.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a problem with field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Check records err against field when it is non-nil.
func (e *ValidationError) Check(field string, err error) {
	if err != nil {
		e.Add(field, err.Error())
	}
}

// OrNil returns e if any field failed.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// KindOf classifies err; anything unrecognised is internal.
func KindOf(err error) Kind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
