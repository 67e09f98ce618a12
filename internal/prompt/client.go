// Package prompt re-injects build feedback into the originating editing
// session via the session host's message API.
package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single follow-up send.
const DefaultTimeout = 10 * time.Second

// Part is one typed segment of a session message. The controller only ever
// sends a single plain-text part.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Client posts follow-up messages to the session host.
type Client struct {
	base   string
	client *http.Client
}

// NewClient creates a Client for the given base URL. An empty base URL
// disables follow-ups; Send then fails with a configuration error so callers
// can log the dropped feedback.
func NewClient(base string) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: DefaultTimeout},
	}
}

// Enabled reports whether a session host endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.base != ""
}

// Send posts a single plain-text message part to the given session.
func (c *Client) Send(ctx context.Context, sessionID, text string) error {
	if !c.Enabled() {
		return fmt.Errorf("session-prompt endpoint not configured")
	}

	body, err := json.Marshal(struct {
		Parts []Part `json:"parts"`
	}{Parts: []Part{{Type: "text", Text: text}}})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/session/%s/message", c.base, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send follow-up to session %s: %w", sessionID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send follow-up to session %s: host returned %s", sessionID, resp.Status)
	}
	return nil
}
