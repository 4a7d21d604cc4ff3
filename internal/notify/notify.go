// Package notify delivers affiliate notifications such as withdrawal OTP codes.
//
// Delivery is fire and forget: callers log a failed Send and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"affiliatepay/internal/common/money"
)

// Kind identifies a notification template
type Kind string

const (
	KindWithdrawalOtp       Kind = "withdrawal_otp"
	KindWithdrawalCompleted Kind = "withdrawal_completed"
)

// Message is a rendered notification addressed to one recipient
type Message struct {
	Kind      Kind              `json:"kind"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
}

// Sender delivers a message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNoRecipient is returned for a message without a recipient
var ErrNoRecipient = errors.New("notification has no recipient")

// Drivers
const (
	DriverLog     = "log"
	DriverNATS    = "nats"
	DriverWebhook = "webhook"
)

// Config holds notification delivery configuration
type Config struct {
	Driver         string        `envconfig:"NOTIFY_DRIVER" default:"log"`
	WebhookURL     string        `envconfig:"NOTIFY_WEBHOOK_URL"`
	WebhookSecret  string        `envconfig:"NOTIFY_WEBHOOK_SECRET"`
	WebhookTimeout time.Duration `envconfig:"NOTIFY_WEBHOOK_TIMEOUT" default:"10s"`
}

// New builds the sender selected by cfg.Driver. raw is only used by the nats driver.
func New(cfg Config, raw RawPublisher, logger *slog.Logger) (Sender, error) {
	switch cfg.Driver {
	case "", DriverLog:
		return &LogSender{Logger: logger}, nil
	case DriverNATS:
		if raw == nil {
			return nil, errors.New("nats notification driver requires NATS_URL")
		}
		return NewNATSSender(raw, logger), nil
	case DriverWebhook:
		if cfg.WebhookURL == "" {
			return nil, errors.New("webhook notification driver requires NOTIFY_WEBHOOK_URL")
		}
		return NewWebhookSender(cfg, logger), nil
	}
	return nil, fmt.Errorf("unknown notification driver %q", cfg.Driver)
}

// LogSender writes messages to the log instead of delivering them
type LogSender struct {
	Logger *slog.Logger
}

// Send logs msg without its body
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if msg.Recipient == "" {
		return ErrNoRecipient
	}
	s.Logger.Info("notification",
		"kind", msg.Kind,
		"recipient", MaskEmail(msg.Recipient),
		"subject", msg.Subject,
	)
	return nil
}

// MaskEmail hides most of the local part, e.g. "ng****@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "****"
	}
	local, domain := email[:at], email[at:]
	keep := 2
	if len(local) <= keep {
		keep = 1
	}
	return local[:keep] + strings.Repeat("*", 4) + domain
}

// OtpMessage renders the withdrawal verification code email
func OtpMessage(email, requestID, code string, amount int64, expiresAt time.Time) Message {
	return Message{
		Kind:      KindWithdrawalOtp,
		Recipient: email,
		Subject:   "Withdrawal verification code",
		Body: fmt.Sprintf("Your code for withdrawing %s is %s. It expires at %s.",
			money.Format(amount), code, expiresAt.Format("15:04:05 02/01/2006")),
		Data: map[string]string{
			"request_id": requestID,
			"code":       code,
			"expires_at": expiresAt.Format(time.RFC3339),
		},
	}
}

// CompletedMessage renders the withdrawal confirmation email
func CompletedMessage(email, requestID string, amount, tax, net int64) Message {
	body := fmt.Sprintf("Your withdrawal of %s has been approved. Tax withheld: %s. Amount transferred: %s.",
		money.Format(amount), money.Format(tax), money.Format(net))
	return Message{
		Kind:      KindWithdrawalCompleted,
		Recipient: email,
		Subject:   "Withdrawal completed",
		Body:      body,
		Data: map[string]string{
			"request_id":       requestID,
			"amount":           fmt.Sprint(amount),
			"tax":              fmt.Sprint(tax),
			"amount_after_tax": fmt.Sprint(net),
		},
	}
}
