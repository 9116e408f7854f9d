package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the default persistent store.
type SQLiteStore struct {
	db        *sql.DB
	factLimit int
}

// NewSQLiteStore creates/opens the relay database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithLimit(path, DefaultFactLimit)
}

func NewSQLiteStoreWithLimit(path string, factLimit int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process relay. Use one shared connection to avoid writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if factLimit <= 0 {
		factLimit = DefaultFactLimit
	}

	store := &SQLiteStore{db: db, factLimit: factLimit}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			first_seen_ms INTEGER NOT NULL,
			last_seen_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS turns_user_idx ON turns(user_id, created_at_ms DESC, seq DESC);`,
		`CREATE TABLE IF NOT EXISTS facts (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			fact TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			UNIQUE(user_id, fact)
		);`,
		`CREATE INDEX IF NOT EXISTS facts_user_idx ON facts(user_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT user_id, platform, name, summary, message_count, first_seen_ms, last_seen_ms
FROM profiles WHERE user_id = ?`, userID)
	return scanProfile(row)
}

func scanProfile(row *sql.Row) (UserProfile, error) {
	var out UserProfile
	var platform string
	var firstMS, lastMS int64
	if err := row.Scan(&out.UserID, &platform, &out.Name, &out.Summary, &out.MessageCount, &firstMS, &lastMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserProfile{}, ErrProfileNotFound
		}
		return UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	out.Platform = Platform(platform)
	out.FirstSeen = time.UnixMilli(firstMS)
	out.LastSeen = time.UnixMilli(lastMS)
	return out, nil
}

func (s *SQLiteStore) CreateProfile(ctx context.Context, userID string, platform Platform) (UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return UserProfile{}, fmt.Errorf("create profile: empty user_id")
	}
	now := nowMS()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO profiles(user_id, platform, name, summary, message_count, first_seen_ms, last_seen_ms)
VALUES(?, ?, '', '', 0, ?, ?)
ON CONFLICT(user_id) DO NOTHING`, userID, string(platform), now, now)
	if err != nil {
		return UserProfile{}, fmt.Errorf("create profile: %w", err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, userID, role, content string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("append turn: empty user_id")
	}
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("append turn: invalid role %q", role)
	}

	now := nowMS()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append turn begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO profiles(user_id, platform, name, summary, message_count, first_seen_ms, last_seen_ms)
VALUES(?, '', '', '', 0, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET last_seen_ms = excluded.last_seen_ms`, userID, now, now); err != nil {
		return fmt.Errorf("append turn ensure profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO turns(id, user_id, role, content, created_at_ms)
VALUES(?, ?, ?, ?, ?)`, uuid.NewString(), userID, role, content, now); err != nil {
		return fmt.Errorf("append turn insert: %w", err)
	}

	if role == RoleUser {
		if _, err := tx.ExecContext(ctx, `
UPDATE profiles SET message_count = message_count + 1 WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("append turn bump count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append turn commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRecentTurns(ctx context.Context, userID string, limit int) ([]ConversationTurn, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, role, content, created_at_ms
FROM turns
WHERE user_id = ?
ORDER BY created_at_ms DESC, seq DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent turns: %w", err)
	}
	defer rows.Close()

	out := make([]ConversationTurn, 0, limit)
	for rows.Next() {
		var turn ConversationTurn
		var createdMS int64
		if err := rows.Scan(&turn.ID, &turn.UserID, &turn.Role, &turn.Content, &createdMS); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.CreatedAt = time.UnixMilli(createdMS)
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent turns rows: %w", err)
	}

	// Rows are newest-first; callers expect chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) AddFact(ctx context.Context, userID, fact, source string) (bool, error) {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("add fact begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO facts(user_id, fact, source, created_at_ms)
VALUES(?, ?, ?, ?)
ON CONFLICT(user_id, fact) DO NOTHING`, userID, fact, source, nowMS())
	if err != nil {
		return false, fmt.Errorf("add fact insert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add fact rows affected: %w", err)
	}
	inserted := affected > 0

	if inserted {
		// Evict oldest entries beyond the cap, insertion order preserved.
		if _, err := tx.ExecContext(ctx, `
DELETE FROM facts
WHERE user_id = ?
AND seq NOT IN (SELECT seq FROM facts WHERE user_id = ? ORDER BY seq DESC LIMIT ?)`, userID, userID, s.factLimit); err != nil {
			return false, fmt.Errorf("add fact evict: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("add fact commit: %w", err)
	}
	return inserted, nil
}

func (s *SQLiteStore) SetSummary(ctx context.Context, userID, summary string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET summary = ? WHERE user_id = ?`, summary, userID)
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetName(ctx context.Context, userID, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET name = ? WHERE user_id = ?`, name, userID)
	if err != nil {
		return fmt.Errorf("set name: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListFacts(ctx context.Context, userID string) ([]MemoryFact, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, fact, source, created_at_ms
FROM facts
WHERE user_id = ?
ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var out []MemoryFact
	for rows.Next() {
		var f MemoryFact
		var createdMS int64
		if err := rows.Scan(&f.UserID, &f.Text, &f.Source, &createdMS); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.CreatedAt = time.UnixMilli(createdMS)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list facts rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) PurgeUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("purge user begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM facts WHERE user_id = ?`,
		`DELETE FROM turns WHERE user_id = ?`,
		`DELETE FROM profiles WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, userID); err != nil {
			return fmt.Errorf("purge user: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("purge user commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM profiles`)
}

func (s *SQLiteStore) CountTurns(ctx context.Context) (int64, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM turns`)
}

func (s *SQLiteStore) CountFacts(ctx context.Context) (int64, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM facts`)
}

func (s *SQLiteStore) countRows(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
