package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const busyTimeoutMs = 5000

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS intents (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		session_id  TEXT NOT NULL DEFAULT '',
		user_input  TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT '',
		action      TEXT NOT NULL DEFAULT '',
		confidence  REAL NOT NULL DEFAULT 0,
		tool_name   TEXT NOT NULL DEFAULT '',
		parameters  TEXT NOT NULL DEFAULT '{}',
		success     INTEGER,
		error_msg   TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		resolved_at TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_intents_user ON intents(user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS feedback (
		id         TEXT PRIMARY KEY,
		intent_id  TEXT NOT NULL REFERENCES intents(id),
		type       TEXT NOT NULL,
		correction TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
}

// SQLiteStore is a durable Store over a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite-backed store at path.
// WAL mode, a busy timeout, and a single connection keep concurrent
// chain executions from tripping over SQLite's write serialization.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("history: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set busy_timeout: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: apply schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) RecordIntent(ctx context.Context, rec *IntentRecord) (*IntentRecord, error) {
	stored := *rec
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	paramsJSON, err := json.Marshal(stored.Parameters)
	if err != nil {
		return nil, fmt.Errorf("history: marshal parameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO intents (id, user_id, session_id, user_input, category, action,
			confidence, tool_name, parameters, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.UserID, stored.SessionID, stored.UserInput,
		stored.Category, stored.Action, stored.Confidence, stored.ToolName,
		string(paramsJSON), stored.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("history: insert intent: %w", err)
	}

	return &stored, nil
}

func (s *SQLiteStore) UpdateOutcome(ctx context.Context, intentID string, success bool, errMsg string) (*IntentRecord, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE intents SET success = ?, error_msg = ?, resolved_at = ?
		WHERE id = ?`,
		boolToInt(success), errMsg, now.Format(time.RFC3339Nano), intentID,
	)
	if err != nil {
		return nil, fmt.Errorf("history: update outcome: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("history: rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.get(ctx, intentID)
}

func (s *SQLiteStore) RecentByUser(ctx context.Context, userID string, n int) ([]*IntentRecord, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, user_input, category, action,
			confidence, tool_name, parameters, success, error_msg,
			created_at, resolved_at
		FROM intents
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		userID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanIntents(rows)
}

func (s *SQLiteStore) SubmitFeedback(ctx context.Context, fb *Feedback) error {
	if _, err := s.get(ctx, fb.IntentID); err != nil {
		return err
	}

	stored := *fb
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, intent_id, type, correction, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		stored.ID, stored.IntentID, string(stored.Type), stored.Correction,
		stored.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: insert feedback: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CategoryStats(ctx context.Context, userID string) ([]CategoryStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*), COALESCE(SUM(success), 0)
		FROM intents
		WHERE user_id = ? AND category != ''
		GROUP BY category
		ORDER BY category`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []CategoryStat
	for rows.Next() {
		var stat CategoryStat
		if err := rows.Scan(&stat.Category, &stat.Total, &stat.Succeeded); err != nil {
			return nil, fmt.Errorf("history: scan stats: %w", err)
		}
		if stat.Total > 0 {
			stat.SuccessRate = float64(stat.Succeeded) / float64(stat.Total)
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) get(ctx context.Context, id string) (*IntentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, user_input, category, action,
			confidence, tool_name, parameters, success, error_msg,
			created_at, resolved_at
		FROM intents WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query intent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	recs, err := scanIntents(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func scanIntents(rows *sql.Rows) ([]*IntentRecord, error) {
	var out []*IntentRecord
	for rows.Next() {
		var (
			rec           IntentRecord
			paramsJSON    string
			success       sql.NullInt64
			createdAtStr  string
			resolvedAtStr sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.UserInput,
			&rec.Category, &rec.Action, &rec.Confidence, &rec.ToolName,
			&paramsJSON, &success, &rec.ErrorMsg, &createdAtStr, &resolvedAtStr); err != nil {
			return nil, fmt.Errorf("history: scan intent: %w", err)
		}

		if paramsJSON != "" && paramsJSON != "{}" {
			if err := json.Unmarshal([]byte(paramsJSON), &rec.Parameters); err != nil {
				return nil, fmt.Errorf("history: unmarshal parameters: %w", err)
			}
		}
		if success.Valid {
			b := success.Int64 != 0
			rec.Success = &b
		}
		createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("history: parse created_at: %w", err)
		}
		rec.CreatedAt = createdAt
		if resolvedAtStr.Valid {
			resolvedAt, err := time.Parse(time.RFC3339Nano, resolvedAtStr.String)
			if err != nil {
				return nil, fmt.Errorf("history: parse resolved_at: %w", err)
			}
			rec.ResolvedAt = &resolvedAt
		}

		out = append(out, &rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
