// Package archive persists the agent's frame history to SQLite so long
// sessions survive restarts and can be inspected offline. The archive is
// write-behind: the streaming path never waits on a disk write.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/livevlm/livevlm-agent/internal/session"
)

// Schema versions are tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    started_at  DATETIME NOT NULL,
    last_seen   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen DESC);

CREATE TABLE IF NOT EXISTS frames (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    frame_id         TEXT NOT NULL DEFAULT '',
    prompt           TEXT NOT NULL DEFAULT '',
    response         TEXT NOT NULL DEFAULT '',
    model            TEXT NOT NULL DEFAULT '',
    processing_time  REAL NOT NULL DEFAULT 0.0,
    success          BOOLEAN NOT NULL DEFAULT 1,
    error            TEXT NOT NULL DEFAULT '',
    timestamp        DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_frames_session ON frames(session_id, timestamp ASC);
`,
	},
}

// SessionInfo is an archived session with its frame count.
type SessionInfo struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	LastSeen   time.Time `json:"last_seen"`
	FrameCount int       `json:"frame_count"`
}

// Archive is the SQLite-backed frame archive.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the archive at the given path and runs all
// pending schema migrations. Pass ":memory:" for an in-memory archive.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Enable foreign-key constraints.
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

// migrate applies any unapplied migrations in order.
func (a *Archive) migrate() error {
	_, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := a.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := a.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := a.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }

// AppendFrame records one processed frame, upserting its session row.
func (a *Archive) AppendFrame(ctx context.Context, sessionID string, rec session.FrameRecord) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO sessions(id, started_at, last_seen)
        VALUES(?,?,?)
        ON CONFLICT(id) DO UPDATE SET last_seen = excluded.last_seen
    `, sessionID, ts, ts)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO frames(session_id, frame_id, prompt, response, model, processing_time, success, error, timestamp)
        VALUES(?,?,?,?,?,?,?,?,?)
    `, sessionID, rec.FrameID, rec.Prompt, rec.Response, rec.Model,
		rec.ProcessingTime, rec.Success, rec.Error, ts)
	if err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}

	return tx.Commit()
}

// Frames returns the archived frames for a session, oldest first. A limit
// of 0 returns all frames.
func (a *Archive) Frames(ctx context.Context, sessionID string, limit int) ([]session.FrameRecord, error) {
	query := `
        SELECT frame_id, prompt, response, model, processing_time, success, error, timestamp
        FROM frames WHERE session_id = ? ORDER BY timestamp ASC, id ASC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []session.FrameRecord
	for rows.Next() {
		rec := session.FrameRecord{SessionID: sessionID}
		if err := rows.Scan(&rec.FrameID, &rec.Prompt, &rec.Response, &rec.Model,
			&rec.ProcessingTime, &rec.Success, &rec.Error, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Sessions returns archived sessions, most recently seen first.
func (a *Archive) Sessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
        SELECT s.id, s.started_at, s.last_seen, COUNT(f.id)
        FROM sessions s LEFT JOIN frames f ON f.session_id = s.id
        GROUP BY s.id ORDER BY s.last_seen DESC LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.StartedAt, &info.LastSeen, &info.FrameCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and all its frames.
func (a *Archive) DeleteSession(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
