package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"docpack/internal/config"
	"docpack/internal/errs"
	"docpack/internal/gateway"
)

// GatewayClient talks to the internal job endpoints. It is the worker's only
// view of the system: no database, no Redis writes, just the shared-secret
// HTTP surface.
type GatewayClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewGatewayClient builds a client from config.
func NewGatewayClient(cfg config.Config) *GatewayClient {
	return &GatewayClient{
		baseURL: cfg.GatewayBaseURL,
		apiKey:  cfg.InternalAPIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchPayload retrieves the rendering payload for a job. The first fetch
// claims the job; repeated fetches return the same frozen payload.
func (c *GatewayClient) FetchPayload(ctx context.Context, jobID string) (gateway.Payload, error) {
	var payload gateway.Payload
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/internal/jobs/%s/payload", jobID), nil, &payload)
	return payload, err
}

// ReportComplete posts the uploaded artifacts for a finished job.
func (c *GatewayClient) ReportComplete(ctx context.Context, jobID string, files []gateway.ReportedFile) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/internal/jobs/%s/complete", jobID), gateway.CompleteRequest{Files: files}, nil)
}

// ReportFail posts a failure message for a job.
func (c *GatewayClient) ReportFail(ctx context.Context, jobID, message string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/internal/jobs/%s/fail", jobID), gateway.FailRequest{ErrorMessage: message}, nil)
}

func (c *GatewayClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(gateway.HeaderAPIKey, c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.CodeUpstream, "gateway request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Code != "" {
			return errs.Newf(errs.Code(envelope.Error.Code), "gateway %s %s: %s", method, path, envelope.Error.Message)
		}
		return errs.Newf(errs.CodeUpstream, "gateway %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
