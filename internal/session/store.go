package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	apperrors "maquette/internal/errors"
)

// Storage layout within the base directory. Each session owns one directory:
//
//	.maquette/sessions/<id>/
//	    session.json      session header (atomic rewrite)
//	    messages.jsonl    ordered message log (append-only)
//	    decisions.jsonl   ordered decision log (append-only)
//	    tasks.json        per-stage task ledger (atomic rewrite)
//	    artifacts/        one JSON record per artifact (create-only)
//	    artifacts/files/  artifact payloads (create-only)
const (
	RootDirName      = ".maquette"
	SessionsDirName  = "sessions"
	SessionFileName  = "session.json"
	MessagesFileName = "messages.jsonl"
	DecisionsFile    = "decisions.jsonl"
	TasksFileName    = "tasks.json"
	ArtifactsDirName = "artifacts"
	ArtifactFilesDir = "files"
)

// headerCacheSize bounds the LRU cache of session headers.
const headerCacheSize = 64

// Store is a file-backed session store. Writes for a given session are
// serialized by a per-session mutex (single-writer discipline); reads may
// proceed concurrently. Headers of recently touched sessions are kept in an
// LRU cache, invalidated on every write.
type Store struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex // session ID -> write lock

	cache *lru.Cache[string, Session]
}

// NewStore creates a Store rooted at the given project base directory.
// Session data lives under {baseDir}/.maquette/sessions.
func NewStore(baseDir string) (*Store, error) {
	sessionsDir := filepath.Join(baseDir, RootDirName, SessionsDirName)
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, apperrors.NewStoreError("failed to create sessions directory", err).WithPath(sessionsDir)
	}

	cache, err := lru.New[string, Session](headerCacheSize)
	if err != nil {
		return nil, apperrors.NewStoreError("failed to create header cache", err)
	}

	return &Store{
		baseDir: baseDir,
		locks:   make(map[string]*sync.RWMutex),
		cache:   cache,
	}, nil
}

// SessionsDir returns the directory containing all sessions.
func (s *Store) SessionsDir() string {
	return filepath.Join(s.baseDir, RootDirName, SessionsDirName)
}

// SessionDir returns the directory for a single session.
func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.SessionsDir(), sessionID)
}

// sessionLock returns the lock guarding one session's files.
func (s *Store) sessionLock(sessionID string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[sessionID] = l
	}
	return l
}

// Create creates a new session for the given initial request, starting at
// the intake stage in active status. The initial request is appended to the
// message log as the first user message.
func (s *Store) Create(ctx context.Context, request string) (*Session, error) {
	if strings.TrimSpace(request) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "initial request must not be empty")
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:      uuid.NewString(),
		Request: request,
		Created: now,
		Updated: now,
		Stage:   StageIntake,
		Status:  StatusActive,
	}

	dir := s.SessionDir(sess.ID)
	if err := os.MkdirAll(filepath.Join(dir, ArtifactsDirName, ArtifactFilesDir), 0755); err != nil {
		return nil, apperrors.NewStoreError("failed to create session directory", err).WithSessionID(sess.ID)
	}

	lock := s.sessionLock(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.writeHeader(sess); err != nil {
		return nil, err
	}
	if _, err := s.appendMessage(sess.ID, "user", request); err != nil {
		return nil, err
	}
	return sess, nil
}

// Load retrieves a session header by ID.
// Returns ErrSessionNotFound if the session does not exist and
// ErrSessionCorrupted if the header cannot be parsed.
func (s *Store) Load(ctx context.Context, sessionID string) (*Session, error) {
	lock := s.sessionLock(sessionID)
	lock.RLock()
	defer lock.RUnlock()

	if sess, ok := s.cache.Get(sessionID); ok {
		cp := sess
		return &cp, nil
	}

	path := filepath.Join(s.SessionDir(sessionID), SessionFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, apperrors.NewStoreError("failed to read session header", err).WithSessionID(sessionID).WithPath(path)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionCorrupted, err)
	}
	if sess.ID != sessionID {
		return nil, fmt.Errorf("%w: header ID %q does not match directory %q", apperrors.ErrSessionCorrupted, sess.ID, sessionID)
	}

	s.cache.Add(sessionID, sess)
	cp := sess
	return &cp, nil
}

// Exists checks whether a session with the given ID exists.
func (s *Store) Exists(sessionID string) bool {
	_, err := os.Stat(filepath.Join(s.SessionDir(sessionID), SessionFileName))
	return err == nil
}

// UpdateStage sets the session's current stage.
func (s *Store) UpdateStage(ctx context.Context, sessionID string, stage Stage) error {
	return s.updateHeader(ctx, sessionID, func(sess *Session) {
		sess.Stage = stage
	})
}

// SetStatus sets the session's lifecycle status.
func (s *Store) SetStatus(ctx context.Context, sessionID string, status Status) error {
	return s.updateHeader(ctx, sessionID, func(sess *Session) {
		sess.Status = status
	})
}

// updateHeader applies a single-field mutation to the session header and
// rewrites it atomically.
func (s *Store) updateHeader(ctx context.Context, sessionID string, mutate func(*Session)) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.readHeader(sessionID)
	if err != nil {
		return err
	}

	mutate(sess)
	sess.Updated = time.Now().UTC()
	return s.writeHeader(sess)
}

// readHeader reads the header without touching the cache. Callers must hold
// the session lock.
func (s *Store) readHeader(sessionID string) (*Session, error) {
	path := filepath.Join(s.SessionDir(sessionID), SessionFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, apperrors.NewStoreError("failed to read session header", err).WithSessionID(sessionID).WithPath(path)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionCorrupted, err)
	}
	return &sess, nil
}

// writeHeader rewrites the session header atomically and refreshes the
// cache. Callers must hold the session lock.
func (s *Store) writeHeader(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return apperrors.NewStoreError("failed to marshal session header", err).WithSessionID(sess.ID)
	}

	path := filepath.Join(s.SessionDir(sess.ID), SessionFileName)
	if err := atomicWriteFile(path, data, 0644); err != nil {
		return apperrors.NewStoreError("failed to write session header", err).WithSessionID(sess.ID).WithPath(path)
	}

	s.cache.Add(sess.ID, *sess)
	return nil
}

// AppendMessage appends a message to the session's ordered message log.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string) (*Message, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if !s.Exists(sessionID) {
		return nil, apperrors.ErrSessionNotFound
	}
	return s.appendMessage(sessionID, role, content)
}

// appendMessage writes a message line. Callers must hold the session lock.
func (s *Store) appendMessage(sessionID, role, content string) (*Message, error) {
	path := filepath.Join(s.SessionDir(sessionID), MessagesFileName)

	seq, err := countLines(path)
	if err != nil {
		return nil, apperrors.NewStoreError("failed to read message log", err).WithSessionID(sessionID).WithPath(path)
	}

	msg := &Message{
		Seq:     seq + 1,
		Role:    role,
		Content: content,
		At:      time.Now().UTC(),
	}
	if err := appendJSONLine(path, msg); err != nil {
		return nil, apperrors.NewStoreError("failed to append message", err).WithSessionID(sessionID).WithPath(path)
	}
	return msg, nil
}

// Messages returns the session's ordered message log.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	lock := s.sessionLock(sessionID)
	lock.RLock()
	defer lock.RUnlock()

	path := filepath.Join(s.SessionDir(sessionID), MessagesFileName)
	var messages []Message
	if err := readJSONLines(path, func(line []byte) error {
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			return err
		}
		messages = append(messages, m)
		return nil
	}); err != nil {
		return nil, apperrors.NewStoreError("failed to read message log", err).WithSessionID(sessionID).WithPath(path)
	}
	return messages, nil
}

// RecordDecision appends a coordinator decision to the session's decision log.
func (s *Store) RecordDecision(ctx context.Context, sessionID string, stage Stage, text string) (*Decision, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if !s.Exists(sessionID) {
		return nil, apperrors.ErrSessionNotFound
	}

	path := filepath.Join(s.SessionDir(sessionID), DecisionsFile)
	seq, err := countLines(path)
	if err != nil {
		return nil, apperrors.NewStoreError("failed to read decision log", err).WithSessionID(sessionID).WithPath(path)
	}

	dec := &Decision{
		Seq:   seq + 1,
		Stage: stage,
		Text:  text,
		At:    time.Now().UTC(),
	}
	if err := appendJSONLine(path, dec); err != nil {
		return nil, apperrors.NewStoreError("failed to append decision", err).WithSessionID(sessionID).WithPath(path)
	}
	return dec, nil
}

// Decisions returns the session's ordered decision log.
func (s *Store) Decisions(ctx context.Context, sessionID string) ([]Decision, error) {
	lock := s.sessionLock(sessionID)
	lock.RLock()
	defer lock.RUnlock()

	path := filepath.Join(s.SessionDir(sessionID), DecisionsFile)
	var decisions []Decision
	if err := readJSONLines(path, func(line []byte) error {
		var d Decision
		if err := json.Unmarshal(line, &d); err != nil {
			return err
		}
		decisions = append(decisions, d)
		return nil
	}); err != nil {
		return nil, apperrors.NewStoreError("failed to read decision log", err).WithSessionID(sessionID).WithPath(path)
	}
	return decisions, nil
}

// RecordArtifact persists an artifact record. Records are create-only:
// recording an artifact whose ID already exists returns ErrArtifactExists.
func (s *Store) RecordArtifact(ctx context.Context, a *Artifact) error {
	if a.ID == "" || a.SessionID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "artifact ID and session ID are required")
	}

	lock := s.sessionLock(a.SessionID)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return apperrors.NewStoreError("failed to marshal artifact", err).WithSessionID(a.SessionID)
	}

	path := filepath.Join(s.SessionDir(a.SessionID), ArtifactsDirName, a.ID+".json")
	if err := createExclusive(path, data); err != nil {
		if os.IsExist(err) {
			return apperrors.ErrArtifactExists
		}
		return apperrors.NewStoreError("failed to write artifact", err).WithSessionID(a.SessionID).WithPath(path)
	}
	return nil
}

// Artifact retrieves a single artifact record by ID.
func (s *Store) Artifact(ctx context.Context, sessionID, artifactID string) (*Artifact, error) {
	lock := s.sessionLock(sessionID)
	lock.RLock()
	defer lock.RUnlock()

	path := filepath.Join(s.SessionDir(sessionID), ArtifactsDirName, artifactID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrArtifactNotFound
		}
		return nil, apperrors.NewStoreError("failed to read artifact", err).WithSessionID(sessionID).WithPath(path)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionCorrupted, err)
	}
	return &a, nil
}

// Artifacts returns all artifact records for a session, ordered by creation
// time then ID for determinism.
func (s *Store) Artifacts(ctx context.Context, sessionID string) ([]*Artifact, error) {
	lock := s.sessionLock(sessionID)
	lock.RLock()
	defer lock.RUnlock()

	dir := filepath.Join(s.SessionDir(sessionID), ArtifactsDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.NewStoreError("failed to list artifacts", err).WithSessionID(sessionID).WithPath(dir)
	}

	var artifacts []*Artifact
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, apperrors.NewStoreError("failed to read artifact", err).WithSessionID(sessionID).WithPath(entry.Name())
		}
		var a Artifact
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionCorrupted, err)
		}
		artifacts = append(artifacts, &a)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		if !artifacts[i].Created.Equal(artifacts[j].Created) {
			return artifacts[i].Created.Before(artifacts[j].Created)
		}
		return artifacts[i].ID < artifacts[j].ID
	})
	return artifacts, nil
}

// WriteArtifactData stores an artifact's payload (a script, report, or
// similar) under the session's artifact files directory and returns the
// relative ref to record on the Artifact. Payload files are create-only.
func (s *Store) WriteArtifactData(ctx context.Context, sessionID, artifactID, content string) (string, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	rel := filepath.Join(ArtifactsDirName, ArtifactFilesDir, artifactID)
	path := filepath.Join(s.SessionDir(sessionID), rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", apperrors.NewStoreError("failed to create artifact files directory", err).WithSessionID(sessionID)
	}
	if err := createExclusive(path, []byte(content)); err != nil {
		if os.IsExist(err) {
			return "", apperrors.ErrArtifactExists
		}
		return "", apperrors.NewStoreError("failed to write artifact payload", err).WithSessionID(sessionID).WithPath(path)
	}
	return filepath.ToSlash(rel), nil
}

// ReadArtifactData reads an artifact payload by its recorded ref. Refs are
// relative to the session directory; refs escaping it are rejected.
func (s *Store) ReadArtifactData(ctx context.Context, sessionID, ref string) (string, error) {
	lock := s.sessionLock(sessionID)
	lock.RLock()
	defer lock.RUnlock()

	clean := filepath.Clean(filepath.FromSlash(ref))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, "artifact ref escapes session directory")
	}

	data, err := os.ReadFile(filepath.Join(s.SessionDir(sessionID), clean))
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.ErrArtifactNotFound
		}
		return "", apperrors.NewStoreError("failed to read artifact payload", err).WithSessionID(sessionID).WithPath(ref)
	}
	return string(data), nil
}

// Tasks returns the session's task ledger. A session with no persisted
// ledger yet gets an empty one.
func (s *Store) Tasks(ctx context.Context, sessionID string) (*Ledger, error) {
	lock := s.sessionLock(sessionID)
	lock.RLock()
	defer lock.RUnlock()

	return s.readTasks(sessionID)
}

// SaveTasks rewrites the session's task ledger atomically.
func (s *Store) SaveTasks(ctx context.Context, sessionID string, ledger *Ledger) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if !s.Exists(sessionID) {
		return apperrors.ErrSessionNotFound
	}
	return s.writeTasks(sessionID, ledger)
}

// MutateTasks applies fn to the current task ledger and rewrites it, all
// under the session write lock, so concurrent stage workers never lose each
// other's updates through read-modify-write races. The persisted ledger is
// returned.
func (s *Store) MutateTasks(ctx context.Context, sessionID string, fn func(*Ledger) error) (*Ledger, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if !s.Exists(sessionID) {
		return nil, apperrors.ErrSessionNotFound
	}

	ledger, err := s.readTasks(sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(ledger); err != nil {
		return nil, err
	}
	if err := s.writeTasks(sessionID, ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

// readTasks reads the ledger without locking. Callers must hold the session
// lock.
func (s *Store) readTasks(sessionID string) (*Ledger, error) {
	path := filepath.Join(s.SessionDir(sessionID), TasksFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewLedger(), nil
		}
		return nil, apperrors.NewStoreError("failed to read task ledger", err).WithSessionID(sessionID).WithPath(path)
	}

	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionCorrupted, err)
	}
	if ledger.Tasks == nil {
		ledger.Tasks = make(map[Stage]*Task)
	}
	return &ledger, nil
}

// writeTasks rewrites the ledger atomically. Callers must hold the session
// lock.
func (s *Store) writeTasks(sessionID string, ledger *Ledger) error {
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return apperrors.NewStoreError("failed to marshal task ledger", err).WithSessionID(sessionID)
	}

	path := filepath.Join(s.SessionDir(sessionID), TasksFileName)
	if err := atomicWriteFile(path, data, 0644); err != nil {
		return apperrors.NewStoreError("failed to write task ledger", err).WithSessionID(sessionID).WithPath(path)
	}
	return nil
}

// atomicWriteFile writes data to a file atomically by writing a temporary
// file in the same directory and renaming it into place, so the target is
// never observed in a partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// createExclusive creates a file with O_EXCL so existing files are never
// overwritten. The raw os error is returned so callers can os.IsExist it.
func createExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// appendJSONLine appends one JSON-encoded value plus newline to a log file.
// The value is encoded before the file is opened so a marshal failure never
// leaves a partial line behind.
func appendJSONLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// countLines returns the number of lines in a log file, 0 if it is missing.
func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(strings.TrimSpace(scanner.Text())) > 0 {
			count++
		}
	}
	return count, scanner.Err()
}

// readJSONLines calls fn for each non-empty line of a log file. A missing
// file yields no lines and no error.
func readJSONLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn([]byte(line)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
