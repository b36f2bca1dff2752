package push

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Email sends a plain text mail over SMTP.
type Email struct {
	cfg    config.EmailConfig
	dialer mailSender
}

func NewEmail(cfg config.EmailConfig) *Email {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	return &Email{cfg: cfg, dialer: d}
}

func newEmailFromConfig(cfg *config.Config, _ *logger.Logger) (Channel, bool) {
	return NewEmail(cfg.Email), cfg.Email.Enabled
}

func (e *Email) Name() string { return "email" }

func (e *Email) ValidateConfig() error {
	var errs []error
	if e.cfg.Host == "" {
		errs = append(errs, errors.New("email: host is empty"))
	}
	if e.cfg.Port <= 0 {
		errs = append(errs, fmt.Errorf("email: invalid port %d", e.cfg.Port))
	}
	if e.sender() == "" {
		errs = append(errs, errors.New("email: from and username are both empty"))
	}
	if len(e.cfg.To) == 0 {
		errs = append(errs, errors.New("email: no recipients"))
	}
	return errors.Join(errs...)
}

func (e *Email) Test(ctx context.Context) error { return sendTest(ctx, e) }

// Send ignores ctx cancellation once the SMTP dialog has started.
func (e *Email) Send(ctx context.Context, title, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.sender())
	m.SetHeader("To", e.cfg.To...)
	m.SetHeader("Subject", title)
	m.SetBody("text/plain", content)

	if err := e.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("email: failed to send: %w", err)
	}
	return nil
}

func (e *Email) sender() string {
	if e.cfg.From != "" {
		return e.cfg.From
	}
	return e.cfg.Username
}
