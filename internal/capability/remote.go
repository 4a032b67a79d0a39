package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// defaultRemoteTimeout bounds a single backend round-trip when the caller's
// context carries no deadline of its own.
const defaultRemoteTimeout = 120 * time.Second

// Remote invokes a specialist capability over HTTP. The backend hosts the
// natural-language reasoning; this client only speaks the invocation wire
// contract: POST {base}/invoke/{name} with the request document, receiving
// either a result document or an error_kind/diagnostic document back.
type Remote struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewRemote creates an HTTP-backed capability.
func NewRemote(name, baseURL string, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{Timeout: defaultRemoteTimeout}
	}
	return &Remote{name: name, baseURL: baseURL, client: client}
}

// Name returns the capability name.
func (r *Remote) Name() string {
	return r.name
}

// Invoke posts the request to the backend. Transport-level problems
// (connection refused, timeouts) surface as tool-unavailable failures so
// the classifier can retry them with backoff.
func (r *Remote) Invoke(ctx context.Context, req *Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint, err := url.JoinPath(r.baseURL, "invoke", r.name)
	if err != nil {
		return nil, fmt.Errorf("build endpoint: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, NewFailure(r.name, KindToolUnavailable, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, NewFailure(r.name, KindToolUnavailable, fmt.Sprintf("reading response: %v", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewFailure(r.name, KindToolUnavailable, fmt.Sprintf("backend rate limited (429): %s", raw))
	case resp.StatusCode >= 500:
		return nil, NewFailure(r.name, KindToolUnavailable, fmt.Sprintf("backend error (%d): %s", resp.StatusCode, raw))
	case resp.StatusCode >= 400:
		return nil, NewFailure(r.name, KindUnknown, fmt.Sprintf("backend rejected request (%d): %s", resp.StatusCode, raw))
	}

	return DecodeResult(r.name, string(raw))
}
