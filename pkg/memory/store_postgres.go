package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists profiles, turns, and facts in PostgreSQL. Used when
// the relay runs against a managed database instead of local sqlite.
type PostgresStore struct {
	pool      *pgxpool.Pool
	factLimit int
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	return NewPostgresStoreWithLimit(ctx, databaseURL, DefaultFactLimit)
}

func NewPostgresStoreWithLimit(ctx context.Context, databaseURL string, factLimit int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	if factLimit <= 0 {
		factLimit = DefaultFactLimit
	}
	return &PostgresStore{pool: pool, factLimit: factLimit}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			message_count BIGINT NOT NULL DEFAULT 0,
			first_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_seen TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_user_created ON turns (user_id, created_at DESC, seq DESC);`,
		`CREATE TABLE IF NOT EXISTS facts (
			seq BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			fact TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, fact)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, platform, name, summary, message_count, first_seen, last_seen
		 FROM profiles WHERE user_id=$1`, userID)

	var out UserProfile
	var platform string
	if err := row.Scan(&out.UserID, &platform, &out.Name, &out.Summary, &out.MessageCount, &out.FirstSeen, &out.LastSeen); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserProfile{}, ErrProfileNotFound
		}
		return UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	out.Platform = Platform(platform)
	return out, nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, userID string, platform Platform) (UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return UserProfile{}, fmt.Errorf("create profile: empty user_id")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, platform) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`, userID, string(platform))
	if err != nil {
		return UserProfile{}, fmt.Errorf("create profile: %w", err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *PostgresStore) AppendTurn(ctx context.Context, userID, role, content string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("append turn: empty user_id")
	}
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("append turn: invalid role %q", role)
	}

	now := time.Now().UTC()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("append turn begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO profiles (user_id, platform, first_seen, last_seen) VALUES ($1, '', $2, $2)
		 ON CONFLICT (user_id) DO UPDATE SET last_seen=EXCLUDED.last_seen`, userID, now); err != nil {
		return fmt.Errorf("append turn ensure profile: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO turns (id, user_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), userID, role, content, now); err != nil {
		return fmt.Errorf("append turn insert: %w", err)
	}

	if role == RoleUser {
		if _, err := tx.Exec(ctx,
			`UPDATE profiles SET message_count = message_count + 1 WHERE user_id=$1`, userID); err != nil {
			return fmt.Errorf("append turn bump count: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("append turn commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecentTurns(ctx context.Context, userID string, limit int) ([]ConversationTurn, error) {
	if limit <= 0 {
		limit = 1
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, role, content, created_at
		 FROM turns WHERE user_id=$1 ORDER BY created_at DESC, seq DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent turns: %w", err)
	}
	defer rows.Close()

	out := make([]ConversationTurn, 0, limit)
	for rows.Next() {
		var turn ConversationTurn
		if err := rows.Scan(&turn.ID, &turn.UserID, &turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *PostgresStore) AddFact(ctx context.Context, userID, fact, source string) (bool, error) {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return false, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("add fact begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO facts (user_id, fact, source) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, fact) DO NOTHING`, userID, fact, source)
	if err != nil {
		return false, fmt.Errorf("add fact insert: %w", err)
	}
	inserted := tag.RowsAffected() > 0

	if inserted {
		if _, err := tx.Exec(ctx,
			`DELETE FROM facts
			 WHERE user_id=$1
			 AND seq NOT IN (SELECT seq FROM facts WHERE user_id=$1 ORDER BY seq DESC LIMIT $2)`,
			userID, s.factLimit); err != nil {
			return false, fmt.Errorf("add fact evict: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("add fact commit: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) SetSummary(ctx context.Context, userID, summary string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE profiles SET summary=$1 WHERE user_id=$2`, summary, userID); err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetName(ctx context.Context, userID, name string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE profiles SET name=$1 WHERE user_id=$2`, name, userID); err != nil {
		return fmt.Errorf("set name: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFacts(ctx context.Context, userID string) ([]MemoryFact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, fact, source, created_at FROM facts WHERE user_id=$1 ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var out []MemoryFact
	for rows.Next() {
		var f MemoryFact
		if err := rows.Scan(&f.UserID, &f.Text, &f.Source, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) PurgeUser(ctx context.Context, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("purge user begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range []string{
		`DELETE FROM facts WHERE user_id=$1`,
		`DELETE FROM turns WHERE user_id=$1`,
		`DELETE FROM profiles WHERE user_id=$1`,
	} {
		if _, err := tx.Exec(ctx, stmt, userID); err != nil {
			return fmt.Errorf("purge user: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("purge user commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM profiles`)
}

func (s *PostgresStore) CountTurns(ctx context.Context) (int64, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM turns`)
}

func (s *PostgresStore) CountFacts(ctx context.Context) (int64, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM facts`)
}

func (s *PostgresStore) countRows(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
