// ABOUTME: Database package journaling every KSC call to SQLite
// ABOUTME: Provides session tracking, an rpc.Observer and query capabilities

package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/rpc"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var log = logger.Named("db")

type DB struct {
	conn *sql.DB
}

// Open opens or creates the SQLite database
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases are per connection.
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Create tables
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info("journal initialized at %s", dbPath)
	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// CreateSession logs a new session
func (db *DB) CreateSession(sessionID, server string) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (id, server) VALUES (?, ?)",
		sessionID, server,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// CloseSession marks a session as closed
func (db *DB) CloseSession(sessionID string) error {
	_, err := db.conn.Exec(
		"UPDATE sessions SET closed_at = CURRENT_TIMESTAMP WHERE id = ?",
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// RecordCall stores one call outcome.
func (db *DB) RecordCall(sessionID string, rec rpc.CallRecord) error {
	var status, code sql.NullInt64
	var kind, message sql.NullString
	if rec.Status != 0 {
		status = sql.NullInt64{Int64: int64(rec.Status), Valid: true}
	}
	if rec.ErrKind != "" {
		kind = sql.NullString{String: rec.ErrKind, Valid: true}
		code = sql.NullInt64{Int64: rec.ErrCode, Valid: true}
		message = sql.NullString{String: rec.ErrMessage, Valid: true}
	}

	_, err := db.conn.Exec(
		`INSERT INTO calls (id, session_id, method, started_at, duration_ms, http_status, error_kind, error_code, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, sessionID, rec.Method, rec.Started.UTC(), rec.Duration.Milliseconds(), status, kind, code, message,
	)
	if err != nil {
		return fmt.Errorf("failed to record call: %w", err)
	}
	return nil
}

// Observer journals every call made on one session. Write failures are logged, not
// returned, so the journal never fails a call.
func (db *DB) Observer(sessionID string) rpc.Observer {
	return rpc.ObserverFunc(func(rec rpc.CallRecord) {
		if err := db.RecordCall(sessionID, rec); err != nil {
			log.Warn("[%s] %v", sessionID, err)
		}
	})
}

// Call represents a journaled call
type Call struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Method     string        `json:"method"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	HTTPStatus int           `json:"http_status,omitempty"`
	ErrKind    string        `json:"error_kind,omitempty"`
	ErrCode    int64         `json:"error_code,omitempty"`
	ErrMessage string        `json:"error_message,omitempty"`
}

// RecentCalls returns up to limit calls, newest first.
func (db *DB) RecentCalls(limit int) ([]Call, error) {
	return db.queryCalls(
		`SELECT id, session_id, method, started_at, duration_ms, http_status, error_kind, error_code, error_message
		 FROM calls ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
}

// GetSessionCalls retrieves all calls for a session in order.
func (db *DB) GetSessionCalls(sessionID string) ([]Call, error) {
	return db.queryCalls(
		`SELECT id, session_id, method, started_at, duration_ms, http_status, error_kind, error_code, error_message
		 FROM calls WHERE session_id = ? ORDER BY started_at ASC, rowid ASC`,
		sessionID,
	)
}

func (db *DB) queryCalls(query string, args ...any) ([]Call, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	calls := []Call{}
	for rows.Next() {
		var c Call
		var durationMS int64
		var status, code sql.NullInt64
		var kind, message sql.NullString

		err := rows.Scan(&c.ID, &c.SessionID, &c.Method, &c.StartedAt, &durationMS, &status, &kind, &code, &message)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}

		c.Duration = time.Duration(durationMS) * time.Millisecond
		if status.Valid {
			c.HTTPStatus = int(status.Int64)
		}
		if kind.Valid {
			c.ErrKind = kind.String
		}
		if code.Valid {
			c.ErrCode = code.Int64
		}
		if message.Valid {
			c.ErrMessage = message.String
		}

		calls = append(calls, c)
	}

	return calls, rows.Err()
}

// Session represents a logged session
type Session struct {
	ID        string     `json:"id"`
	Server    string     `json:"server"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// GetAllSessions retrieves all sessions
func (db *DB) GetAllSessions() ([]Session, error) {
	rows, err := db.conn.Query(
		`SELECT id, server, created_at, closed_at
		 FROM sessions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var closedAt sql.NullTime

		err := rows.Scan(&s.ID, &s.Server, &s.CreatedAt, &closedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if closedAt.Valid {
			s.ClosedAt = &closedAt.Time
		}

		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}
