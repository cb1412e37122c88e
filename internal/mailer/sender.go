package mailer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fdg312/nutrition-engine/internal/config"
)

// Sender delivers plain-text email messages.
type Sender interface {
	Send(ctx context.Context, to, subject, textBody string) error
}

// NewSenderFromConfig builds email sender based on config.
func NewSenderFromConfig(cfg *config.Config, logger *log.Logger) (Sender, error) {
	if logger == nil {
		logger = log.Default()
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.EmailSenderMode))
	if mode == "" {
		mode = "local"
	}

	switch mode {
	case "local":
		return NewLocalSender(logger), nil
	case "smtp":
		if strings.TrimSpace(cfg.SMTPHost) == "" {
			return nil, errors.New("SMTP_HOST is required for EMAIL_SENDER_MODE=smtp")
		}
		if cfg.SMTPPort <= 0 {
			return nil, errors.New("SMTP_PORT must be greater than 0 for EMAIL_SENDER_MODE=smtp")
		}
		if strings.TrimSpace(cfg.SMTPUsername) != "" && strings.TrimSpace(cfg.SMTPPassword) == "" {
			return nil, errors.New("SMTP_PASSWORD is required when SMTP_USERNAME is set")
		}
		if _, err := envelopeAddress(cfg.SMTPFrom); err != nil {
			return nil, err
		}

		return NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			UseTLS:   cfg.SMTPUseTLS,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported EMAIL_SENDER_MODE=%q", mode)
	}
}
