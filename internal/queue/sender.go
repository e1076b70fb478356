package queue

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// Sender delivers one mail event.
type Sender interface {
	Send(ctx context.Context, ev MailEvent) error
}

// SMTPSender delivers plain text mail through an SMTP relay.
type SMTPSender struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

func (s SMTPSender) Send(_ context.Context, ev MailEvent) error {
	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Pass, s.Host)
	}
	msg := ComposeMessage(s.From, ev)
	if err := smtp.SendMail(net.JoinHostPort(s.Host, s.Port), auth, s.From, []string{ev.Email}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender writes events to the log instead of sending them.  Links are
// only included when IncludeLinks is set (local development).
type LogSender struct {
	Logger       *zap.Logger
	IncludeLinks bool
}

func (s LogSender) Send(_ context.Context, ev MailEvent) error {
	fields := []zap.Field{
		zap.String("type", string(ev.Type)),
		zap.Uint64("user_id", ev.UserID),
		zap.String("to", ev.Email),
	}
	if s.IncludeLinks && ev.Link != "" {
		fields = append(fields, zap.String("link", ev.Link))
	}
	s.Logger.Info("mail (log sender)", fields...)
	return nil
}

// ComposeMessage renders the RFC 822 message for ev.
func ComposeMessage(from string, ev MailEvent) []byte {
	subject, body := content(ev)
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + ev.Email + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func content(ev MailEvent) (subject, body string) {
	name := ev.Name
	if name == "" {
		name = ev.Email
	}
	expiry := ""
	if ev.ExpiresAt != nil {
		expiry = fmt.Sprintf("\nThis link expires at %s.\n", ev.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	switch ev.Type {
	case MailVerificationRequested:
		return "Verify your email address",
			fmt.Sprintf("Hello %s,\n\nConfirm your email address by opening:\n%s\n%s", name, ev.Link, expiry)
	case MailPasswordResetRequested:
		return "Reset your password",
			fmt.Sprintf("Hello %s,\n\nA password reset was requested for your account. Open:\n%s\n%s\nIf you did not ask for this, ignore this message.\n", name, ev.Link, expiry)
	case MailPasswordChanged:
		return "Your password was changed",
			fmt.Sprintf("Hello %s,\n\nThe password of your account was just changed. If this was not you, reset it immediately.\n", name)
	}
	return string(ev.Type), ""
}
