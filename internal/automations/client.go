package automations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adamchain/heyway-core/internal/pkg/httpretry"
)

// Client fetches automations from the upstream calling backend.
type Client struct {
	baseURL string
	apiKey  string
	http    httpretry.HTTPDoer
}

// NewClient creates an upstream client. Requests are retried with
// backoff on transient failures.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpretry.NewClient(&http.Client{Timeout: 15 * time.Second}, 3),
	}
}

// listResponse is the upstream payload shape. Some deployments return
// a bare array, others wrap it.
type listResponse struct {
	Automations []Automation `json:"automations"`
}

// List fetches the current automation collection.
func (c *Client) List(ctx context.Context) ([]Automation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/automations", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build automations request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("automations fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("automations fetch returned %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read automations response: %w", err)
	}

	// Bare array first, wrapped object as fallback.
	var list []Automation
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped listResponse
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse automations response: %w", err)
	}
	return wrapped.Automations, nil
}
