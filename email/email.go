package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"socialblog/common"
)

// Mailer delivers one plain-text message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends through a single SMTP relay.
type SMTPMailer struct {
	host     string
	port     string
	user     string
	password string
	from     string
	prefix   string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer returns an SMTP mailer, or a LogMailer when no host is configured.
func NewMailer(cfg common.MailConfig, l *zap.Logger) Mailer {
	if cfg.Host == "" {
		l.Warn("SMTP host not set, emails will only be logged")
		return &LogMailer{log: l, prefix: cfg.SubjectPrefix}
	}
	return &SMTPMailer{
		host:     cfg.Host,
		port:     cfg.Port,
		user:     cfg.User,
		password: cfg.Password,
		from:     cfg.Sender,
		prefix:   cfg.SubjectPrefix,
		send:     smtp.SendMail,
	}
}

func (e *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	message := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", e.from, to, withPrefix(e.prefix, subject), body)

	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}
	addr := fmt.Sprintf("%s:%s", e.host, e.port)

	if err := e.send(addr, auth, envelopeAddress(e.from), []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	log    *zap.Logger
	prefix string
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info("email",
		zap.String("to", to),
		zap.String("subject", withPrefix(m.prefix, subject)),
		zap.String("body", body),
	)
	return nil
}

func withPrefix(prefix, subject string) string {
	if prefix == "" {
		return subject
	}
	return prefix + " " + subject
}

// envelopeAddress strips the display name from "Name <addr>".
func envelopeAddress(from string) string {
	start := strings.LastIndex(from, "<")
	end := strings.LastIndex(from, ">")
	if start >= 0 && end > start {
		return from[start+1 : end]
	}
	return from
}
