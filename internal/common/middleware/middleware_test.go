package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCallerIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		role      string
		affiliate string
		wantOK    bool
		wantAdmin bool
	}{
		{"admin", "admin", "", true, true},
		{"affiliate", "affiliate", "aff-1", true, false},
		{"affiliate without id", "affiliate", "", false, false},
		{"unknown role", "root", "aff-1", false, false},
		{"anonymous", "", "", false, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got Caller
			var ok bool
			h := CallerIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, ok = GetCaller(r.Context())
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("X-Caller-Role", tt.role)
			r.Header.Set("X-Affiliate-ID", tt.affiliate)
			h.ServeHTTP(httptest.NewRecorder(), r)

			if ok != tt.wantOK {
				t.Fatalf("caller present = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.IsAdmin() != tt.wantAdmin {
				t.Fatalf("IsAdmin = %v, want %v", got.IsAdmin(), tt.wantAdmin)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	h := CallerIdentity(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Caller-Role", "affiliate")
	r.Header.Set("X-Affiliate-ID", "aff-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("affiliate status = %d, want 403", w.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Caller-Role", "admin")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("admin status = %d, want 204", w.Code)
	}
}

func TestCanActFor(t *testing.T) {
	t.Parallel()

	c := Caller{AffiliateID: "aff-1", Role: RoleAffiliate}
	if !c.CanActFor("aff-1") || c.CanActFor("aff-2") {
		t.Fatal("affiliate scoping wrong")
	}
	if !(Caller{Role: RoleAdmin}).CanActFor("anyone") {
		t.Fatal("admin must act for anyone")
	}
}
