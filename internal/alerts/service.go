// Package alerts delivers operational notifications about pipeline runs
// to Slack and an ops mailbox. Delivery is best effort; a dead webhook
// must never take a run down with it.
package alerts

import (
	"context"
	"errors"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// Service fans alerts out to every configured channel.
type Service struct {
	slack  *SlackNotifier
	email  *EmailNotifier
	logger arbor.ILogger
}

var _ interfaces.AlertService = (*Service)(nil)

// NewService wires notifiers from config. Channels left unconfigured
// are simply skipped.
func NewService(cfg common.AlertsConfig, logger arbor.ILogger) *Service {
	s := &Service{logger: logger}

	if cfg.SlackWebhookURL != "" {
		s.slack = NewSlackNotifier(cfg.SlackWebhookURL, logger)
	}
	if cfg.Email.Enabled {
		s.email = NewEmailNotifier(cfg.Email, logger)
	}

	return s
}

// Send delivers the alert to every configured channel. Each channel is
// attempted even when an earlier one fails; the combined error is
// returned for the caller to log.
func (s *Service) Send(ctx context.Context, alert *interfaces.Alert) error {
	return s.SendWithAttachments(ctx, alert, nil)
}

// SendWithAttachments is Send with files for the email channel. Slack
// receives the alert without them.
func (s *Service) SendWithAttachments(ctx context.Context, alert *interfaces.Alert, attachments []Attachment) error {
	var errs []error

	if s.slack != nil {
		if err := s.slack.Send(ctx, alert); err != nil {
			if s.logger != nil {
				s.logger.Warn().Err(err).Str("title", alert.Title).Msg("Slack alert delivery failed")
			}
			errs = append(errs, err)
		}
	}

	if s.email != nil {
		if err := s.email.Send(ctx, alert, attachments); err != nil {
			if s.logger != nil {
				s.logger.Warn().Err(err).Str("title", alert.Title).Msg("Email alert delivery failed")
			}
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func sortedFieldKeys(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
