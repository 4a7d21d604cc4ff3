package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"affiliatepay/internal/affiliate"
	"affiliatepay/internal/common/events"
	"affiliatepay/internal/common/middleware"
	"affiliatepay/internal/ledger"
	ledgerstore "affiliatepay/internal/ledger/store"
)

func newServer() http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledgers := ledger.NewService(ledgerstore.NewMemory(), events.LogPublisher{Logger: logger}, logger)
	svc := affiliate.NewService(affiliate.NewMemoryStore(), ledgers, nil, logger)
	return middleware.CallerIdentity(NewHandler(svc).Routes())
}

func do(h http.Handler, method, path, role, affiliateID, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if role != "" {
		r.Header.Set("X-Caller-Role", role)
	}
	if affiliateID != "" {
		r.Header.Set("X-Affiliate-ID", affiliateID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRegisterAndGet(t *testing.T) {
	h := newServer()
	body := `{"id":"sme-1","class":"sme","name":"Shop","email":"shop@example.com"}`

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		aff    string
		body   string
		want   int
	}{
		{"affiliate cannot register", http.MethodPost, "/", "affiliate", "sme-1", body, http.StatusForbidden},
		{"admin registers", http.MethodPost, "/", "admin", "", body, http.StatusCreated},
		{"duplicate", http.MethodPost, "/", "admin", "", body, http.StatusConflict},
		{"bad email", http.MethodPost, "/", "admin", "", `{"class":"sme","name":"X","email":"nope"}`, http.StatusUnprocessableEntity},
		{"bad class", http.MethodPost, "/", "admin", "", `{"class":"gold","name":"X","email":"x@example.com"}`, http.StatusUnprocessableEntity},
		{"owner reads", http.MethodGet, "/sme-1", "affiliate", "sme-1", "", http.StatusOK},
		{"other affiliate", http.MethodGet, "/sme-1", "affiliate", "sme-2", "", http.StatusForbidden},
		{"admin reads missing", http.MethodGet, "/nobody", "admin", "", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		w := do(h, tt.method, tt.path, tt.role, tt.aff, tt.body)
		if w.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d: %s", tt.name, w.Code, tt.want, w.Body.String())
		}
	}
}
