package notification

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/anifeed/internal/domain"
)

// Service fans sync notifications out to every configured sender. A failing
// sender does not keep the others from being notified.
type Service struct {
	log     zerolog.Logger
	senders []domain.NotificationService
}

// NewService creates a notification service. Without a webhook URL it has
// no senders and every call is a no-op.
func NewService(log zerolog.Logger, webhookURL string) *Service {
	s := &Service{log: log.With().Str("module", "notification").Logger()}
	if webhookURL != "" {
		s.senders = append(s.senders, NewDiscordService(log, webhookURL))
	}
	return s
}

// Add registers another sender
func (s *Service) Add(sender domain.NotificationService) {
	s.senders = append(s.senders, sender)
}

func (s *Service) SendSuccess(ctx context.Context, stats domain.Statistics) error {
	return s.each(func(n domain.NotificationService) error {
		return n.SendSuccess(ctx, stats)
	})
}

func (s *Service) SendError(ctx context.Context, err error) error {
	return s.each(func(n domain.NotificationService) error {
		return n.SendError(ctx, err)
	})
}

// each returns the first failure after every sender was tried
func (s *Service) each(send func(domain.NotificationService) error) error {
	var first error
	failed := 0
	for _, n := range s.senders {
		if err := send(n); err != nil {
			s.log.Error().Err(err).Msg("notification failed")
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		return errors.Wrapf(first, "%d of %d notifications failed", failed, len(s.senders))
	}
	return nil
}
