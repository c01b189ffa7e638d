// Package scheduling provides a client for the clinic's appointment-slot
// search service. The engine only consumes slot availability; booking and
// calendar internals live in the scheduling service itself.
package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

// Slot is a bookable opening returned by the scheduling service.
type Slot struct {
	Start        time.Time `json:"start"`
	Professional string    `json:"professional"`
	DurationMins int       `json:"duration_mins,omitempty"`
}

// SlotQuery carries the three qualified intake fields used to search.
type SlotQuery struct {
	TherapyArea string `json:"therapy_area"`
	Period      string `json:"period"`
	Age         int    `json:"age"`
}

// SlotSet groups openings by preference: Primary matches the requested
// period, Alternatives are adjacent options the service chose to include.
type SlotSet struct {
	Primary      []Slot `json:"primary"`
	Alternatives []Slot `json:"alternatives,omitempty"`
}

// Searcher is the slot-search dependency consumed by the intake engine.
type Searcher interface {
	FindSlots(ctx context.Context, q SlotQuery) (*SlotSet, error)
}

// Client is an HTTP client for the scheduling service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a scheduling service client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

var _ Searcher = (*Client)(nil)

// FindSlots queries the scheduling service for openings matching the intake
// fields.
func (c *Client) FindSlots(ctx context.Context, q SlotQuery) (*SlotSet, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("scheduling: marshal slot query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/slots/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("scheduling: create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scheduling: search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("scheduling: search failed with status %d: %s", resp.StatusCode, string(body))
	}

	var set SlotSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("scheduling: decode search response: %w", err)
	}

	return &set, nil
}

// Health checks the scheduling service.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("scheduling: create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("scheduling: health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scheduling: health check failed with status %d", resp.StatusCode)
	}
	return nil
}
