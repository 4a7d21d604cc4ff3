package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/oklog/ulid/v2"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set
const SignatureHeader = "X-Signature"

// WebhookSender posts messages to an HTTP endpoint
type WebhookSender struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookSender creates a webhook sender
func NewWebhookSender(cfg Config, logger *slog.Logger) *WebhookSender {
	return &WebhookSender{
		url:    cfg.WebhookURL,
		secret: cfg.WebhookSecret,
		httpClient: &http.Client{
			Timeout: cfg.WebhookTimeout,
		},
		logger: logger,
	}
}

// Send posts msg as JSON and fails on any non-2xx response
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return ErrNoRecipient
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	deliveryID := ulid.Make().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", deliveryID)
	if s.secret != "" {
		req.Header.Set(SignatureHeader, Sign(s.secret, body))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification webhook error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	s.logger.Debug("notification delivered",
		"kind", msg.Kind,
		"recipient", MaskEmail(msg.Recipient),
		"delivery_id", deliveryID,
	)
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
