// Package imagegen wraps the external image-generation tool used during the
// planning and creative stages to produce concept imagery. The tool is
// invoked only by the coordinator, never by arbitrary specialists.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	apperrors "maquette/internal/errors"
)

// Generator produces a concept image for a text prompt and returns a
// reference (path or URI) to the stored image.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// defaultTimeout bounds one generation round-trip.
const defaultTimeout = 60 * time.Second

// HTTPGenerator calls an image-generation backend over HTTP:
// POST {endpoint} with {"prompt": "..."}, receiving {"image_ref": "..."}.
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPGenerator creates an HTTP-backed Generator.
func NewHTTPGenerator(endpoint string, client *http.Client) *HTTPGenerator {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPGenerator{endpoint: endpoint, client: client}
}

// Generate requests one image for the prompt.
func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("marshal image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: image backend: %v", apperrors.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading image response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image backend returned %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		ImageRef string `json:"image_ref"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("image backend returned malformed response: %w", err)
	}
	if out.ImageRef == "" {
		return "", fmt.Errorf("image backend returned no image_ref")
	}
	return out.ImageRef, nil
}

// Stub is an in-memory Generator for tests. It returns scripted refs in
// FIFO order, or a deterministic ref when nothing is queued.
type Stub struct {
	mu      sync.Mutex
	refs    []string
	err     error
	Prompts []string
}

// NewStub creates an empty Stub.
func NewStub() *Stub {
	return &Stub{}
}

// QueueRef schedules the next ref to return.
func (s *Stub) QueueRef(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs = append(s.refs, ref)
}

// SetErr makes all Generate calls fail with err.
func (s *Stub) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Generate returns the next scripted ref.
func (s *Stub) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Prompts = append(s.Prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.refs) == 0 {
		return fmt.Sprintf("concept_images/stub-%d.png", len(s.Prompts)), nil
	}
	ref := s.refs[0]
	s.refs = s.refs[1:]
	return ref, nil
}
