package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"docpack/internal/config"
	"docpack/internal/errs"
	"docpack/internal/gateway"
)

func testGatewayClient(t *testing.T, handler http.Handler) (*GatewayClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGatewayClient(config.Config{GatewayBaseURL: srv.URL, InternalAPIKey: "secret"}), srv
}

func TestFetchPayload(t *testing.T) {
	payload := gateway.Payload{JobID: "j1", PackageID: "p1", TemplateKey: "templates/template.xlsm"}
	payload.Job.TargetVersion = 3

	client, _ := testGatewayClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(gateway.HeaderAPIKey) != "secret" {
			t.Errorf("missing api key header")
		}
		if r.URL.Path != "/internal/jobs/j1/payload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))

	got, err := client.FetchPayload(context.Background(), "j1")
	if err != nil {
		t.Fatalf("fetch payload: %v", err)
	}
	if got.JobID != "j1" || got.Job.TargetVersion != 3 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestReportCompletePostsFiles(t *testing.T) {
	var got gateway.CompleteRequest
	client, _ := testGatewayClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/internal/jobs/j1/complete" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","job_id":"j1"}`))
	}))

	files := []gateway.ReportedFile{{DocType: "contract", Version: 2, Filename: "Contract.pdf", StorageKey: "packages/p1/Contract_v2.pdf", ContentType: "application/pdf"}}
	if err := client.ReportComplete(context.Background(), "j1", files); err != nil {
		t.Fatalf("report complete: %v", err)
	}
	if len(got.Files) != 1 || got.Files[0].StorageKey != "packages/p1/Contract_v2.pdf" {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestGatewayErrorEnvelopeDecoded(t *testing.T) {
	client, _ := testGatewayClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_TRANSITION","message":"job is done"}}`))
	}))

	_, err := client.FetchPayload(context.Background(), "j1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.IsCode(err, errs.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
}

func TestReportFailNonJSONErrorBody(t *testing.T) {
	client, _ := testGatewayClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))

	err := client.ReportFail(context.Background(), "j1", "renderer crashed")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.IsCode(err, errs.CodeUpstream) {
		t.Fatalf("expected UPSTREAM_ERROR, got %v", err)
	}
}
