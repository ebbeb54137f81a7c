package email

import (
	"context"
	"fmt"
	"strings"
)

// Notifier composes the account emails and hands them to a Mailer.
type Notifier struct {
	mailer     Mailer
	domain     string
	adminEmail string
}

func NewNotifier(m Mailer, domain, adminEmail string) *Notifier {
	return &Notifier{
		mailer:     m,
		domain:     strings.TrimRight(domain, "/"),
		adminEmail: adminEmail,
	}
}

func (n *Notifier) link(path, token string) string {
	return fmt.Sprintf("%s%s/%s", n.domain, path, token)
}

func (n *Notifier) SendConfirmation(ctx context.Context, to, username, token string) error {
	body := fmt.Sprintf(`Dear %s,

Welcome!

To confirm your account please open the following link:

%s

Note: replies to this email address are not monitored.
`, username, n.link("/auth/confirm", token))

	return n.mailer.Send(ctx, to, "Confirm Your Account", body)
}

func (n *Notifier) SendPasswordReset(ctx context.Context, to, username, token string) error {
	body := fmt.Sprintf(`Dear %s,

To reset your password open the following link:

%s

If you have not requested a password reset simply ignore this message.
`, username, n.link("/auth/reset", token))

	return n.mailer.Send(ctx, to, "Reset Your Password", body)
}

func (n *Notifier) SendChangeEmail(ctx context.Context, to, username, token string) error {
	body := fmt.Sprintf(`Dear %s,

To confirm your new email address open the following link:

%s

If you did not ask for this change simply ignore this message.
`, username, n.link("/auth/change-email", token))

	return n.mailer.Send(ctx, to, "Confirm Your Email Address", body)
}

// SendNewUser tells the administrator about a registration. It does nothing
// when no admin address is configured.
func (n *Notifier) SendNewUser(ctx context.Context, username string) error {
	if n.adminEmail == "" {
		return nil
	}
	body := fmt.Sprintf("User %s has joined.\n", username)
	return n.mailer.Send(ctx, n.adminEmail, "New User", body)
}
