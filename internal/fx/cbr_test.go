package fx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"docpack/internal/errs"
)

const sampleFeed = `{"Valute":{"USD":{"Nominal":1,"Value":92.5},"AED":{"Nominal":10,"Value":252.5}}}`

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient()
	c.url = srv.URL
	return c
}

func TestRate(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	})

	usd, err := c.Rate(context.Background(), "USD")
	if err != nil {
		t.Fatalf("usd rate: %v", err)
	}
	if usd != 92.5 {
		t.Fatalf("usd rate = %v, want 92.5", usd)
	}

	aed, err := c.Rate(context.Background(), "AED")
	if err != nil {
		t.Fatalf("aed rate: %v", err)
	}
	// Nominal 10 means the quoted value covers ten units.
	if aed != 25.25 {
		t.Fatalf("aed rate = %v, want 25.25", aed)
	}
}

func TestRateUnknownCurrency(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	})
	if _, err := c.Rate(context.Background(), "EUR"); !errs.IsCode(err, errs.CodeUpstream) {
		t.Fatalf("expected UPSTREAM_ERROR, got %v", err)
	}
}

func TestRateFeedDown(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if _, err := c.Rate(context.Background(), "USD"); !errs.IsCode(err, errs.CodeUpstream) {
		t.Fatalf("expected UPSTREAM_ERROR, got %v", err)
	}
}
