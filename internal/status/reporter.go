// Package status reports coarse session health to an external orchestration
// endpoint. Reporting is diagnostic, not load-bearing: every failure is logged
// and swallowed, and an unconfigured reporter is a no-op.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

// Value is one of the three coarse health states. Last write wins at the
// endpoint; there is nothing to reconcile client-side.
type Value string

const (
	Pending Value = "Pending"
	Active  Value = "Active"
	Errored Value = "Errored"
)

// DefaultTimeout bounds a single status write.
const DefaultTimeout = 5 * time.Second

// Reporter performs idempotent best-effort status writes.
type Reporter struct {
	url    string
	client *http.Client
}

// NewReporter creates a Reporter for the given endpoint URL. An empty URL
// disables reporting entirely.
func NewReporter(url string) *Reporter {
	return &Reporter{
		url: url,
		client: &http.Client{
			Timeout: DefaultTimeout, // short timeout, sends must not block sessions
		},
	}
}

// Enabled reports whether a status endpoint is configured.
func (r *Reporter) Enabled() bool {
	return r != nil && r.url != ""
}

// Emit sends one status write. Each call is an independent PUT; calling twice
// with the same value produces two writes. Transport errors and non-2xx
// responses are logged and swallowed — Emit never fails visibly.
func (r *Reporter) Emit(ctx context.Context, v Value) {
	if !r.Enabled() {
		return
	}

	body, err := json.Marshal(struct {
		Status Value `json:"status"`
	}{Status: v})
	if err != nil {
		log.Printf("status: marshal %s: %v", v, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("status: build request for %s: %v", v, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		log.Printf("status: emit %s: %v", v, err)
		return
	}
	defer resp.Body.Close()
	// No response body is consumed; drain so the connection can be reused.
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("status: emit %s: endpoint returned %s", v, resp.Status)
	}
}
