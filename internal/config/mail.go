package config

import "os"

// MailConfig selects how mail trigger events leave the service.  With an
// AMQP URL they are published to RabbitMQ; without one they go straight to
// the sender.  The sender is SMTP when SMTP_HOST is set, otherwise the log.
type MailConfig struct {
	AMQPURL         string
	Queue           string
	ConsumerEnabled bool
	SMTPHost        string
	SMTPPort        string
	SMTPUser        string
	SMTPPass        string
	From            string
}

func LoadMailConfig() MailConfig {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		url = os.Getenv("AMQP_URL")
	}
	return MailConfig{
		AMQPURL:         url,
		Queue:           envStr("MAIL_QUEUE", "auth.mail"),
		ConsumerEnabled: envBool("MAIL_CONSUMER_ENABLED", true),
		SMTPHost:        os.Getenv("SMTP_HOST"),
		SMTPPort:        envStr("SMTP_PORT", "587"),
		SMTPUser:        os.Getenv("SMTP_USER"),
		SMTPPass:        os.Getenv("SMTP_PASS"),
		From:            envStr("SMTP_FROM", "no-reply@newsroom.local"),
	}
}
