// Package calendar reads busy intervals from an external calendar bridge.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/example/slotledger/internal/availability"
)

// Client fetches busy intervals over HTTP. Failures are surfaced to the
// caller; the availability computer decides to degrade to empty.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a calendar client, or nil when no base URL is configured.
// A nil *Client is a valid no-op source.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) Name() string { return "calendar" }

type busyItem struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ListBusy calls GET {base}/busy?from=&to= and returns the intervals. A nil
// receiver returns nothing, so an unconfigured calendar behaves as empty.
func (c *Client) ListBusy(ctx context.Context, from, to time.Time) ([]availability.Interval, error) {
	if c == nil {
		return nil, nil
	}

	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/busy?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar busy lookup: unexpected status %d", resp.StatusCode)
	}

	var items []busyItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("calendar busy lookup: decode: %w", err)
	}

	intervals := make([]availability.Interval, 0, len(items))
	for _, it := range items {
		if !it.End.After(it.Start) {
			continue
		}
		intervals = append(intervals, availability.Interval{Start: it.Start, End: it.End})
	}
	return intervals, nil
}
