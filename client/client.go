// Package client talks to the concept backend that serves per-era neighbourhoods
// of a concept.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is used when no backend is configured.
// Can be overridden via the ECHOES_API_URL environment variable.
const DefaultBaseURL = "http://localhost:8000"

// DefaultTimeout bounds every request
const DefaultTimeout = 5 * time.Second

// Client communicates with the concept backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new backend client. An empty baseURL falls back to
// ECHOES_API_URL, then DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("ECHOES_API_URL")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// --- Wire types ---

// TimelineItem is one neighbour of a concept within an era
type TimelineItem struct {
	Text       string         `json:"text"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EraData is the neighbourhood of a concept in one era
type EraData struct {
	Era      string         `json:"era"`
	Items    []TimelineItem `json:"items"`
	Centroid []float64      `json:"centroid,omitempty"`
}

// PrimaryAssociation names the dominant meaning at both ends of the timeline
type PrimaryAssociation struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TimelineResponse is returned by /timeline
type TimelineResponse struct {
	Concept            string              `json:"concept"`
	Eras               []EraData           `json:"eras"`
	SemanticShift      *float64            `json:"semantic_shift,omitempty"`
	PrimaryAssociation *PrimaryAssociation `json:"primary_association,omitempty"`
}

// EraQueryResponse is returned by /era
type EraQueryResponse struct {
	Concept string         `json:"concept"`
	Era     string         `json:"era"`
	Items   []TimelineItem `json:"items"`
}

// SymbolSide describes one artifact of a symbol pair
type SymbolSide struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Era         string `json:"era"`
}

// SymbolPair pairs an ancient and a modern artifact
type SymbolPair struct {
	Ancient SymbolSide `json:"ancient"`
	Modern  SymbolSide `json:"modern"`
}

// SymbolPairsResponse is returned by /symbol-pairs, keyed by era
type SymbolPairsResponse struct {
	Symbol string                `json:"symbol"`
	Pairs  map[string]SymbolPair `json:"pairs"`
}

// EmbeddingResponse is returned by /embed
type EmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// --- API Methods ---

// Health checks that the backend is reachable
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, "/health", nil, &out); err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return &out, nil
}

// Embed returns the embedding for text
func (c *Client) Embed(ctx context.Context, text string) (*EmbeddingResponse, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, "/embed", body)
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed failed: %w", c.parseError(resp))
	}
	var out EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return &out, nil
}

// Timeline returns the concept's neighbourhood across all eras
func (c *Client) Timeline(ctx context.Context, concept string, topN int) (*TimelineResponse, error) {
	params := url.Values{
		"concept": {strings.ToLower(concept)},
		"top_n":   {strconv.Itoa(topN)},
	}
	var out TimelineResponse
	if err := c.getJSON(ctx, "/timeline", params, &out); err != nil {
		return nil, fmt.Errorf("timeline fetch failed: %w", err)
	}
	return &out, nil
}

// Era returns the concept's neighbourhood in a single era
func (c *Client) Era(ctx context.Context, concept, era string, topN int) (*EraQueryResponse, error) {
	params := url.Values{
		"concept": {strings.ToLower(concept)},
		"era":     {era},
		"top_n":   {strconv.Itoa(topN)},
	}
	var out EraQueryResponse
	if err := c.getJSON(ctx, "/era", params, &out); err != nil {
		return nil, fmt.Errorf("era data fetch failed: %w", err)
	}
	return &out, nil
}

// SymbolPairs returns the pattern pairs for a symbol
func (c *Client) SymbolPairs(ctx context.Context, symbol string) (*SymbolPairsResponse, error) {
	params := url.Values{"symbol": {strings.ToLower(symbol)}}
	var out SymbolPairsResponse
	if err := c.getJSON(ctx, "/symbol-pairs", params, &out); err != nil {
		return nil, fmt.Errorf("symbol pairs fetch failed: %w", err)
	}
	return &out, nil
}

// --- Helper methods ---

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return c.HTTPClient.Do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.HTTPClient.Do(req)
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		if errResp.Detail != "" {
			return fmt.Errorf("%s: %s", errResp.Error, errResp.Detail)
		}
		return fmt.Errorf("%s", errResp.Error)
	}
	return fmt.Errorf("server error: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
