package engine

import (
	"context"
	"sync"
)

// Stub is an in-memory Engine for tests and offline runs. Responses are
// scripted per call in FIFO order; an unscripted call succeeds with an
// empty result.
type Stub struct {
	mu sync.Mutex

	execResults []*ExecResult
	execErrs    []error
	scene       *SceneInfo
	pingErr     error

	// Scripts records every script passed to Execute, in order.
	Scripts []string
}

// NewStub creates an empty Stub.
func NewStub() *Stub {
	return &Stub{}
}

// QueueExec schedules the outcome of the next Execute call. Results and
// errors queue independently of each other's nil entries.
func (s *Stub) QueueExec(result *ExecResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execResults = append(s.execResults, result)
	s.execErrs = append(s.execErrs, err)
}

// SetScene sets the scene info returned by SceneInfo.
func (s *Stub) SetScene(info *SceneInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene = info
}

// SetPingErr sets the error returned by Ping.
func (s *Stub) SetPingErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// Execute returns the next scripted outcome.
func (s *Stub) Execute(ctx context.Context, script string) (*ExecResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Scripts = append(s.Scripts, script)

	if len(s.execResults) == 0 {
		return &ExecResult{Success: true}, nil
	}

	result := s.execResults[0]
	err := s.execErrs[0]
	s.execResults = s.execResults[1:]
	s.execErrs = s.execErrs[1:]
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SceneInfo returns the scripted scene state.
func (s *Stub) SceneInfo(ctx context.Context) (*SceneInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scene == nil {
		return &SceneInfo{}, nil
	}
	return s.scene, nil
}

// Ping returns the scripted ping error.
func (s *Stub) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}
