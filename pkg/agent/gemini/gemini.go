// Package gemini implements the agent.Gateway against the Gemini
// Interactions API, which hosts the Deep Research agent. Interactions are
// created in background mode and polled by id until they reach a terminal
// state; the report arrives as the final output text.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nstogner/deepresearch/pkg/agent"
	"github.com/nstogner/deepresearch/pkg/domain"
)

const (
	// DefaultBaseURL is the Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultAgent is the Deep Research agent identifier.
	DefaultAgent = "deep-research-pro-preview-12-2025"
)

// Client talks to the Gemini Interactions API.
type Client struct {
	apiKey     string
	agent      string
	baseURL    string
	httpClient *http.Client
}

// Verify interface compliance.
var _ agent.Gateway = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithAgent overrides the agent the interaction is created against.
func WithAgent(name string) Option {
	return func(c *Client) { c.agent = name }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new Interactions API client. The key is required; callers
// are expected to have validated its presence already.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		agent:   DefaultAgent,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Agent returns the agent identifier interactions are created against.
func (c *Client) Agent() string { return c.agent }

type createRequest struct {
	Input      string `json:"input"`
	Agent      string `json:"agent"`
	Background bool   `json:"background"`
}

// interaction is the wire form of an Interactions API resource.
type interaction struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Agent   string `json:"agent,omitempty"`
	Outputs []struct {
		Text string `json:"text"`
	} `json:"outputs,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Start creates a background research interaction and returns its id. The
// id format is opaque and must not be interpreted.
func (c *Client) Start(ctx context.Context, query string) (string, error) {
	slog.Debug("gemini.Start", "agent", c.agent)

	body, err := json.Marshal(createRequest{
		Input:      query,
		Agent:      c.agent,
		Background: true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal create request: %w", err)
	}

	var in interaction
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/interactions", bytes.NewReader(body), &in); err != nil {
		return "", fmt.Errorf("create interaction: %w", err)
	}

	slog.Debug("gemini.Start created", "interactionID", in.ID)
	return in.ID, nil
}

// GetStatus fetches the interaction and maps it into a snapshot. Statistics
// are computed over the last output's text whenever outputs are present.
func (c *Client) GetStatus(ctx context.Context, interactionID string) (*agent.Snapshot, error) {
	slog.Debug("gemini.GetStatus", "interactionID", interactionID)

	var in interaction
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/interactions/"+interactionID, nil, &in); err != nil {
		return nil, fmt.Errorf("get interaction %s: %w", interactionID, err)
	}

	snap := &agent.Snapshot{
		ID:        in.ID,
		RawStatus: in.Status,
		State:     domain.MapStatus(in.Status),
		Agent:     in.Agent,
	}
	if snap.Agent == "" {
		snap.Agent = c.agent
	}

	for _, out := range in.Outputs {
		snap.Outputs = append(snap.Outputs, agent.Output{Text: out.Text})
	}
	if text, ok := snap.ReportText(); ok {
		snap.Statistics = domain.ComputeStatistics(snap.Agent, text)
	}

	if in.Error != nil {
		code := in.Error.Code
		if code == "" {
			code = "UNKNOWN"
		}
		msg := in.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("interaction %s failed without detail", interactionID)
		}
		snap.Error = &domain.RemoteError{Code: code, Message: msg}
	}

	slog.Debug("gemini.GetStatus mapped", "status", in.Status, "state", snap.State, "outputs", len(snap.Outputs))
	return snap, nil
}

// apiError is the standard error envelope on non-2xx responses.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if err := json.Unmarshal(respBody, &ae); err == nil && ae.Error.Message != "" {
			return fmt.Errorf("HTTP %d: %s (%s)", resp.StatusCode, ae.Error.Message, ae.Error.Status)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
