// Package fx resolves currency rates against RUB from the Central Bank of
// Russia daily feed. Best effort: callers fall back to manual rates.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"docpack/internal/errs"
)

const dailyURL = "https://www.cbr-xml-daily.ru/daily_json.js"

// Client fetches daily rates over HTTP.
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient builds a client with a bounded request timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        dailyURL,
	}
}

type dailyFeed struct {
	Valute map[string]struct {
		Nominal float64 `json:"Nominal"`
		Value   float64 `json:"Value"`
	} `json:"Valute"`
}

// Rate returns the RUB rate for one unit of the given currency.
func (c *Client) Rate(ctx context.Context, currency string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errs.Wrap(errs.CodeUpstream, "fetch cbr rates", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, errs.Newf(errs.CodeUpstream, "cbr feed returned status %d", resp.StatusCode)
	}

	var feed dailyFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return 0, errs.Wrap(errs.CodeUpstream, "decode cbr feed", err)
	}

	v, ok := feed.Valute[currency]
	if !ok || v.Value == 0 {
		return 0, errs.Newf(errs.CodeUpstream, "cbr rate not found for %s", currency)
	}
	nominal := v.Nominal
	if nominal == 0 {
		nominal = 1
	}
	return v.Value / nominal, nil
}
