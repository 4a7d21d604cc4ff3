package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"affiliatepay/internal/common/nats"
)

// RawPublisher publishes a payload on a subject
type RawPublisher interface {
	PublishRaw(ctx context.Context, subject string, data []byte) error
}

// NATSSender hands messages to the mailer through the notifications stream
type NATSSender struct {
	publisher RawPublisher
	logger    *slog.Logger
}

// NewNATSSender creates a sender publishing on notifications.email
func NewNATSSender(publisher RawPublisher, logger *slog.Logger) *NATSSender {
	return &NATSSender{publisher: publisher, logger: logger}
}

// Subject is where email notifications are published
const Subject = nats.NotificationsPrefix + ".email"

// Send publishes msg as JSON
func (s *NATSSender) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return ErrNoRecipient
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.publisher.PublishRaw(ctx, Subject, data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	s.logger.Debug("notification queued", "kind", msg.Kind, "recipient", MaskEmail(msg.Recipient))
	return nil
}
