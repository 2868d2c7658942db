package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"docpack/internal/config"
)

func TestRequireKey(t *testing.T) {
	s := New(config.Config{InternalAPIKey: "secret"}, nil)
	handler := s.RequireKey(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/internal/jobs/j1/payload", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/jobs/j1/payload", nil)
	req.Header.Set(HeaderAPIKey, "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/jobs/j1/payload", nil)
	req.Header.Set(HeaderAPIKey, "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("valid key: status %d, want 204", rec.Code)
	}
}
