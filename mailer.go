package auth

import (
	"context"

	"github.com/goliatone/go-errors"
)

// MailerFunc adapts two functions into the Mailer interface.
type MailerFunc struct {
	VerificationCode  func(ctx context.Context, email, code string) error
	PasswordResetLink func(ctx context.Context, email, token string) error
}

// SendVerificationCode implements Mailer.
func (m MailerFunc) SendVerificationCode(ctx context.Context, email, code string) error {
	if m.VerificationCode == nil {
		return nil
	}
	return m.VerificationCode(ctx, email, code)
}

// SendPasswordResetLink implements Mailer.
func (m MailerFunc) SendPasswordResetLink(ctx context.Context, email, token string) error {
	if m.PasswordResetLink == nil {
		return nil
	}
	return m.PasswordResetLink(ctx, email, token)
}

// logMailer writes notifications to the logger. It is the default used in
// development so flows are exercisable without an SMTP relay.
type logMailer struct {
	logger Logger
}

// NewLogMailer returns a Mailer that prints messages through the logger.
func NewLogMailer(logger Logger) Mailer {
	if logger == nil {
		logger = defLogger{}
	}
	return logMailer{logger: logger}
}

func (m logMailer) SendVerificationCode(_ context.Context, email, code string) error {
	m.logger.Info("verification code notification", "to", email, "code", code)
	return nil
}

func (m logMailer) SendPasswordResetLink(_ context.Context, email, token string) error {
	m.logger.Info("password reset notification", "to", email, "link", "/password-reset/"+token)
	return nil
}

// WrapDeliveryError normalizes transport failures so callers can test for
// ErrNotificationDelivery regardless of the mailer implementation.
func WrapDeliveryError(err error, email string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotificationDelivery) {
		return err
	}
	return errors.Wrap(err, ErrNotificationDelivery.Category, ErrNotificationDelivery.Message).
		WithTextCode(ErrNotificationDelivery.TextCode).
		WithMetadata(map[string]any{"email": email})
}

func normalizeMailer(m Mailer) Mailer {
	if m == nil {
		return NewLogMailer(nil)
	}
	return m
}
