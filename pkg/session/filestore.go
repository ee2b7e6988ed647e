package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/loom/internal/observability"
	"github.com/harun/loom/internal/tracing"
)

// FileStore persists each session as a JSONL file, one message per
// line. Writes go through a per-session mutex and are fsynced so a
// crash never loses an acknowledged append.
type FileStore struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewFileStore creates a JSONL-backed store rooted at dir. An empty dir
// defaults to $HOME/.loom/sessions.
func NewFileStore(dir string) (*FileStore, error) {
	observability.EnsureRegistered()

	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".loom", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	fs := &FileStore{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", dir).Msg("File session store initialized")

	return fs, nil
}

func (fs *FileStore) sessionPath(sessionKey string) string {
	return filepath.Join(fs.dir, sessionKey+".jsonl")
}

func (fs *FileStore) writeLock(sessionKey string) *sync.Mutex {
	fs.locksMu.Lock()
	defer fs.locksMu.Unlock()

	lock, ok := fs.writeLocks[sessionKey]
	if !ok {
		lock = &sync.Mutex{}
		fs.writeLocks[sessionKey] = lock
	}
	return lock
}

// Append adds one message to a session's history.
func (fs *FileStore) Append(ctx context.Context, sessionKey string, msg Message) error {
	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(
		ctx,
		"loom.session",
		"session.append",
		attribute.String("session_key", sessionKey),
		attribute.String("role", msg.Role),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if err := validateSessionKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	lock := fs.writeLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	history, err := fs.load(ctx, sessionKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := validateAppend(sessionKey, history, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	file, err := os.OpenFile(fs.sessionPath(sessionKey), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync session file: %w", err)
	}

	logger.Debug().
		Str("role", msg.Role).
		Int("history_len", len(history)+1).
		Msg("Message appended")

	return nil
}

// History returns the full ordered history of a session. A session that
// does not exist yet has an empty history; that is not an error.
func (fs *FileStore) History(ctx context.Context, sessionKey string) ([]Message, error) {
	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(
		ctx,
		"loom.session",
		"session.history",
		attribute.String("session_key", sessionKey),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := validateSessionKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	history, err := fs.load(ctx, sessionKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return history, nil
}

// load reads and parses the session file. Corrupt lines are skipped
// with a warning so one bad write does not poison a whole session.
func (fs *FileStore) load(ctx context.Context, sessionKey string) ([]Message, error) {
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	file, err := os.Open(fs.sessionPath(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var history []Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse line, skipping")
			continue
		}
		if msg.Role == "" {
			logger.Warn().Int("line", lineNum).Msg("Invalid entry, skipping")
			continue
		}

		history = append(history, msg)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	if history == nil {
		history = []Message{}
	}
	return history, nil
}

// Reset clears the history of one session. Other sessions are
// untouched.
func (fs *FileStore) Reset(ctx context.Context, sessionKey string) error {
	ctx = tracing.WithSessionKey(ctx, sessionKey)
	_, span := tracing.StartSpan(
		ctx,
		"loom.session",
		"session.reset",
		attribute.String("session_key", sessionKey),
	)
	defer span.End()

	if err := validateSessionKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	lock := fs.writeLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fs.sessionPath(sessionKey)); err != nil && !os.IsNotExist(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	log.Info().Str("session_key", sessionKey).Msg("Session reset")

	return nil
}

// List returns the keys of all persisted sessions.
func (fs *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(entry.Name(), ".jsonl"))
	}

	observability.SetActiveSessions(len(sessions))

	return sessions, nil
}

// Repair rewrites a session file keeping only the lines that still
// parse. Useful after a partial write from a crash.
func (fs *FileStore) Repair(ctx context.Context, sessionKey string) error {
	if err := validateSessionKey(sessionKey); err != nil {
		return err
	}

	lock := fs.writeLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	history, err := fs.load(ctx, sessionKey)
	if err != nil {
		return err
	}

	path := fs.sessionPath(sessionKey)
	tempPath := path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	for _, msg := range history {
		data, err := json.Marshal(msg)
		if err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to write message: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	log.Info().
		Str("session_key", sessionKey).
		Int("messages", len(history)).
		Msg("Session repaired")

	return nil
}

// Close releases the store's in-memory locks.
func (fs *FileStore) Close() error {
	fs.locksMu.Lock()
	fs.writeLocks = make(map[string]*sync.Mutex)
	fs.locksMu.Unlock()
	return nil
}
