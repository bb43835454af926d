// Package oracle talks to the external strategy-generation service. The
// service receives top-performer descriptors, their metrics, and a market
// summary, and returns candidate descriptors. Candidates are data, never
// code; validation happens downstream in the evolution engine.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/evoquant/evobot/internal/domain"
)

// Client is the REST client for the proposal oracle.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an oracle client.
//
// baseURL is the service root, e.g. "https://oracle.internal/v1". apiKey may
// be empty when the deployment does not authenticate.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		logger: logger.With(slog.String("component", "oracle")),
	}
}

// Propose posts the selection package and decodes the candidate list. The
// caller's context carries the proposal deadline.
func (c *Client) Propose(ctx context.Context, req domain.ProposalRequest) (domain.ProposalResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.ProposalResponse{}, fmt.Errorf("oracle: encode request: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/proposals", payload)
	if err != nil {
		return domain.ProposalResponse{}, err
	}

	var resp domain.ProposalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ProposalResponse{}, fmt.Errorf("oracle: decode response: %w", err)
	}

	c.logger.Debug("proposal received",
		slog.String("cycle_id", req.CycleID),
		slog.Int("candidates", len(resp.Candidates)),
	)
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("oracle: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("oracle: %s %s: status %d: %s", method, path, resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
