package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/loom/internal/observability"
	"github.com/harun/loom/internal/tracing"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key  TEXT NOT NULL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL,
	tool_calls   TEXT,
	tool_call_id TEXT,
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_key, id);
`

// SQLiteStore persists history in a single SQLite database. Insertion
// order (rowid) is the history order.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. An empty path
// defaults to $HOME/.loom/sessions.db.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	observability.EnsureRegistered()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".loom", "sessions.db")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite session store initialized")

	return &SQLiteStore{db: db}, nil
}

// Append adds one message to a session's history.
func (ss *SQLiteStore) Append(ctx context.Context, sessionKey string, msg Message) error {
	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(
		ctx,
		"loom.session",
		"session.append",
		attribute.String("session_key", sessionKey),
		attribute.String("role", msg.Role),
	)
	defer span.End()

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

	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	history, err := ss.historyTx(ctx, tx, sessionKey)
	if err != nil {
		return err
	}
	if err := validateAppend(sessionKey, history, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var toolCalls interface{}
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCalls = string(data)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (session_key, role, content, tool_calls, tool_call_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionKey, msg.Role, msg.Content, toolCalls, msg.ToolCallID, msg.Timestamp,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return tx.Commit()
}

// History returns the full ordered history of a session.
func (ss *SQLiteStore) History(ctx context.Context, sessionKey string) ([]Message, error) {
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

	return ss.historyTx(ctx, ss.db, sessionKey)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (ss *SQLiteStore) historyTx(ctx context.Context, q querier, sessionKey string) ([]Message, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT role, content, tool_calls, tool_call_id, created_at
		 FROM messages WHERE session_key = ? ORDER BY id`,
		sessionKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []Message{}
	for rows.Next() {
		var msg Message
		var toolCalls sql.NullString
		var toolCallID sql.NullString

		if err := rows.Scan(&msg.Role, &msg.Content, &toolCalls, &toolCallID, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				log.Warn().Str("session_key", sessionKey).Err(err).Msg("Failed to parse tool calls, skipping")
			}
		}
		msg.ToolCallID = toolCallID.String

		history = append(history, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	return history, nil
}

// Reset clears one session.
func (ss *SQLiteStore) Reset(ctx context.Context, sessionKey string) error {
	if err := validateSessionKey(sessionKey); err != nil {
		return err
	}

	if _, err := ss.db.ExecContext(ctx, `DELETE FROM messages WHERE session_key = ?`, sessionKey); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}

	log.Info().Str("session_key", sessionKey).Msg("Session reset")

	return nil
}

// List returns the keys of all sessions with history.
func (ss *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := ss.db.QueryContext(ctx, `SELECT DISTINCT session_key FROM messages ORDER BY session_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan session key: %w", err)
		}
		sessions = append(sessions, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session rows: %w", err)
	}

	observability.SetActiveSessions(len(sessions))

	return sessions, nil
}

// Close closes the underlying database.
func (ss *SQLiteStore) Close() error {
	return ss.db.Close()
}
