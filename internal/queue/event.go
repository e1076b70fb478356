// Package queue carries mail trigger events from the auth service to the
// mailer over RabbitMQ.
package queue

import (
	"errors"
	"time"
)

// MailType names the message a MailEvent asks the mailer to send.
type MailType string

const (
	MailVerificationRequested  MailType = "verification_requested"
	MailPasswordResetRequested MailType = "password_reset_requested"
	MailPasswordChanged        MailType = "password_changed"
)

// MailEvent is published whenever an account operation needs an email.  It
// carries everything the mailer needs so that consumers never query the
// primary database.
type MailEvent struct {
	Type        MailType   `json:"type"`
	UserID      uint64     `json:"user_id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Token       string     `json:"token,omitempty"`
	Link        string     `json:"link,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
}

// Validate checks the fields every consumer relies on.
func (e MailEvent) Validate() error {
	switch e.Type {
	case MailVerificationRequested, MailPasswordResetRequested:
		if e.Token == "" {
			return errors.New("mail event: missing token")
		}
	case MailPasswordChanged:
	default:
		return errors.New("mail event: unknown type " + string(e.Type))
	}
	if e.Email == "" {
		return errors.New("mail event: missing recipient")
	}
	return nil
}
