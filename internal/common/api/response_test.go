package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetPaginationParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 50, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=500", 50, 0},
		{"limit=-1&offset=-5", 50, 0},
		{"limit=abc", 50, 0},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		got := GetPaginationParams(r, 50, 100)
		if got.Limit != tt.wantLimit || got.Offset != tt.wantOffset {
			t.Fatalf("query %q: got limit=%d offset=%d, want %d/%d", tt.query, got.Limit, got.Offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestDecodeAndValidateReportsFields(t *testing.T) {
	t.Parallel()

	type body struct {
		Amount int64  `json:"amount" validate:"gt=0"`
		Code   string `json:"code" validate:"required,len=6,numeric"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":0,"code":"12"}`))
	var b body
	err := DecodeAndValidate(r, &b)
	if err == nil {
		t.Fatal("expected validation error")
	}

	w := httptest.NewRecorder()
	ValidationError(w, err)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}

	var resp Response[any]
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeValidation {
		t.Fatalf("error = %+v, want VALIDATION_ERROR", resp.Error)
	}
	if _, ok := resp.Error.Details["Amount"]; !ok {
		t.Fatalf("details missing Amount: %v", resp.Error.Details)
	}
	if _, ok := resp.Error.Details["Code"]; !ok {
		t.Fatalf("details missing Code: %v", resp.Error.Details)
	}
}
