// Package notify delivers turn-completion notifications. The orchestrator
// derives a short summary from the final assistant text and hands it to a
// backend; delivery failures are the caller's to log, never to surface.
package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/lk2023060901/chat-bridge/internal/conf"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
)

// LogNotifier writes summaries to the structured log. It is the default
// backend and the fallback when nothing else is configured.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.L()
	}
	return &LogNotifier{logger: log}
}

// Notify logs the turn summary.
func (n *LogNotifier) Notify(ctx context.Context, sessionID, summary string) error {
	n.logger.Info("turn completed",
		zap.String("session_id", sessionID),
		zap.String("summary", summary),
	)
	return nil
}

// EmailNotifier mails summaries to a configured recipient list.
type EmailNotifier struct {
	config *conf.EmailConfig
	logger *logger.Logger
}

// NewEmailNotifier creates an email-backed notifier.
func NewEmailNotifier(cfg *conf.EmailConfig, log *logger.Logger) (*EmailNotifier, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("email notifier requires an smtp host")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("email notifier requires from and to addresses")
	}
	if log == nil {
		log = logger.L()
	}
	return &EmailNotifier{config: cfg, logger: log}, nil
}

// Notify sends the summary as a plain-text mail.
func (n *EmailNotifier) Notify(ctx context.Context, sessionID, summary string) error {
	opts := []mail.Option{
		mail.WithPort(n.config.Port),
	}
	if n.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.config.Username),
			mail.WithPassword(n.config.Password),
		)
	}

	client, err := mail.NewClient(n.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(n.config.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(n.config.To...); err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}
	msg.Subject("Chat turn completed")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf("Session %s\n\n%s\n", sessionID, summary))

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send notification mail: %w", err)
	}

	n.logger.Debug("notification mail sent",
		zap.String("session_id", sessionID),
		zap.Strings("to", n.config.To),
	)
	return nil
}
