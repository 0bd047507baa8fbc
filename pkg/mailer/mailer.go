package mailer

import (
	"errors"
	"fmt"

	"support-api/pkg/config"

	"gopkg.in/gomail.v2"
)

// ErrNotConfigured is returned when SMTP settings are missing
var ErrNotConfigured = errors.New("email is not configured")

// Mailer sends transactional mail over SMTP
type Mailer struct {
	cfg *config.EmailConfig
}

// NewMailer creates a mailer from configuration
func NewMailer(cfg *config.EmailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Enabled reports whether SMTP settings were configured
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != ""
}

// SendPasswordResetEmail sends the reset link built from the raw (unhashed)
// reset token to the given address.
func (m *Mailer) SendPasswordResetEmail(email, resetToken, userName string) error {
	if !m.Enabled() {
		return ErrNotConfigured
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", m.cfg.FrontendURL, resetToken)

	from := m.cfg.From
	if from == "" {
		from = m.cfg.User
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", from, m.cfg.AppName)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", "Password Reset Request")
	msg.SetBody("text/plain", fmt.Sprintf(`Hello %s,

We received a request to reset your account password.

To reset your password, visit this link:
%s

This link is valid for 1 hour only.

If you didn't request this password reset, please ignore this email.

Thank you,
%s Team
`, userName, resetLink, m.cfg.AppName))
	msg.AddAlternative("text/html", fmt.Sprintf(`<p>Hello %s,</p>
<p>We received a request to reset your account password. If you made this request, open the link below to set a new password:</p>
<p><a href="%s">Reset Password</a></p>
<p>This link is valid for <strong>1 hour</strong> only. If you didn't request this password reset, please ignore this email.</p>
<p>Thank you,<br><strong>%s Team</strong></p>`, userName, resetLink, m.cfg.AppName))

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Password)
	return dialer.DialAndSend(msg)
}
