package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMaskEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"nguyenvana@example.com", "ng****@example.com"},
		{"ab@example.com", "a****@example.com"},
		{"a@example.com", "a****@example.com"},
		{"not-an-email", "****"},
		{"@example.com", "****"},
	}
	for _, tt := range tests {
		if got := MaskEmail(tt.in); got != tt.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOtpMessage(t *testing.T) {
	t.Parallel()

	exp := time.Date(2024, 5, 2, 10, 5, 0, 0, time.UTC)
	msg := OtpMessage("a@example.com", "wd-1", "012345", 1_500_000, exp)

	if msg.Kind != KindWithdrawalOtp || msg.Data["code"] != "012345" || msg.Data["request_id"] != "wd-1" {
		t.Fatalf("message = %+v", msg)
	}
	if !strings.Contains(msg.Body, "012345") {
		t.Fatalf("body does not carry the code: %q", msg.Body)
	}
}

type rawRecorder struct {
	subject string
	data    []byte
}

func (r *rawRecorder) PublishRaw(_ context.Context, subject string, data []byte) error {
	r.subject, r.data = subject, data
	return nil
}

func TestNATSSender(t *testing.T) {
	t.Parallel()

	rec := &rawRecorder{}
	s := NewNATSSender(rec, discard())

	if err := s.Send(context.Background(), CompletedMessage("a@example.com", "wd-1", 2_000_001, 200_000, 1_800_001)); err != nil {
		t.Fatal(err)
	}
	if rec.subject != "notifications.email" {
		t.Fatalf("subject = %q", rec.subject)
	}
	var got Message
	if err := json.Unmarshal(rec.data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Data["amount_after_tax"] != "1800001" {
		t.Fatalf("data = %v", got.Data)
	}

	if err := s.Send(context.Background(), Message{}); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("empty recipient error = %v", err)
	}
}

func TestWebhookSenderSignsBody(t *testing.T) {
	t.Parallel()

	var gotSig, wantSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		wantSig = Sign("s3cret", body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(Config{WebhookURL: srv.URL, WebhookSecret: "s3cret", WebhookTimeout: time.Second}, discard())
	if err := s.Send(context.Background(), OtpMessage("a@example.com", "wd-1", "111111", 1, time.Now())); err != nil {
		t.Fatal(err)
	}
	if gotSig == "" || gotSig != wantSig {
		t.Fatalf("signature = %q, want %q", gotSig, wantSig)
	}
}

func TestWebhookSenderFailsOnErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSender(Config{WebhookURL: srv.URL, WebhookTimeout: time.Second}, discard())
	if err := s.Send(context.Background(), OtpMessage("a@example.com", "wd-1", "111111", 1, time.Now())); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestNewSelectsDriver(t *testing.T) {
	t.Parallel()

	if s, err := New(Config{}, nil, discard()); err != nil {
		t.Fatal(err)
	} else if _, ok := s.(*LogSender); !ok {
		t.Fatalf("default driver = %T", s)
	}
	if _, err := New(Config{Driver: DriverNATS}, nil, discard()); err == nil {
		t.Fatal("nats driver without publisher should fail")
	}
	if _, err := New(Config{Driver: DriverWebhook}, nil, discard()); err == nil {
		t.Fatal("webhook driver without url should fail")
	}
	if _, err := New(Config{Driver: "sms"}, nil, discard()); err == nil {
		t.Fatal("unknown driver should fail")
	}
}
