package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	apperrors "maquette/internal/errors"
)

// Wire protocol: one JSON request per connection, newline-terminated, one
// JSON response back. Matches the engine addon's command socket.
//
//	-> {"type": "execute_code", "params": {"code": "..."}}
//	<- {"status": "success", "result": {...}}
//	<- {"status": "error", "message": "SyntaxError: ..."}

// command is a request to the engine socket.
type command struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// response is the engine's reply envelope.
type response struct {
	Status  string          `json:"status"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

// defaultDialTimeout bounds connection establishment to the engine.
const defaultDialTimeout = 5 * time.Second

// Client is a TCP client for the engine's command socket. Each call dials a
// fresh connection; the engine serializes commands on its side, so the
// client holds no connection state.
type Client struct {
	addr        string
	dialTimeout time.Duration
}

// NewClient creates a Client for the engine listening at addr
// (host:port).
func NewClient(addr string) *Client {
	return &Client{addr: addr, dialTimeout: defaultDialTimeout}
}

// Execute runs a script in the engine.
func (c *Client) Execute(ctx context.Context, script string) (*ExecResult, error) {
	resp, err := c.roundTrip(ctx, command{
		Type:   "execute_code",
		Params: map[string]any{"code": script},
	})
	if err != nil {
		return nil, err
	}

	if resp.Status != "success" {
		// The script reached the engine but failed there; the message is
		// the raw diagnostic for the classifier.
		return &ExecResult{Success: false, Error: resp.Message}, nil
	}

	var result ExecResult
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			// Engines may return a bare output string instead of the full
			// result shape.
			var output string
			if err2 := json.Unmarshal(resp.Result, &output); err2 != nil {
				return nil, fmt.Errorf("engine returned malformed result: %w", err)
			}
			result.Output = output
		}
	}
	result.Success = true
	return &result, nil
}

// SceneInfo returns a summary of the engine's current scene.
func (c *Client) SceneInfo(ctx context.Context) (*SceneInfo, error) {
	resp, err := c.roundTrip(ctx, command{Type: "get_scene_info"})
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("engine scene query failed: %s", resp.Message)
	}

	var raw struct {
		Objects []struct {
			Name string `json:"name"`
		} `json:"objects"`
	}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &raw); err != nil {
			return nil, fmt.Errorf("engine returned malformed scene info: %w", err)
		}
	}

	info := &SceneInfo{ObjectCount: len(raw.Objects)}
	for _, obj := range raw.Objects {
		if obj.Name != "" {
			info.ObjectNames = append(info.ObjectNames, obj.Name)
		}
	}
	return info, nil
}

// Ping checks whether the engine socket accepts connections.
func (c *Client) Ping(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrEngineUnavailable, err)
	}
	return conn.Close()
}

// roundTrip dials the engine, sends one command, and reads one response.
func (c *Client) roundTrip(ctx context.Context, cmd command) (*response, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrEngineUnavailable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal engine command: %w", err)
	}
	payload = append(payload, '\n')

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("%w: write failed: %v", apperrors.ErrEngineUnavailable, err)
	}

	reader := bufio.NewReaderSize(conn, 1<<20)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("%w: read failed: %v", apperrors.ErrEngineUnavailable, err)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("engine returned malformed response: %w", err)
	}
	return &resp, nil
}
