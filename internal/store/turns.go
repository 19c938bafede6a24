package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

const (
	maxSessions  = 200
	writeTimeout = 5 * time.Second
)

// TurnRecord is one completed (or failed) conversation turn.
type TurnRecord struct {
	ID         string
	SessionID  string
	Transcript string
	Response   string
	Status     string // "completed", "cancelled" or "failed"
	DurationMs float64
	CreatedAt  time.Time
}

// Store persists sessions and turns to PostgreSQL.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open connects to the database at connStr and ensures the schema exists.
func Open(connStr string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at   TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			created_at  TIMESTAMPTZ NOT NULL,
			transcript  TEXT NOT NULL DEFAULT '',
			response    TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS turns_session_idx ON turns (session_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session and prunes old ones.
func (s *Store) CreateSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at) VALUES ($1, $2)`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id NOT IN (SELECT id FROM sessions ORDER BY started_at DESC LIMIT $1)`,
		maxSessions,
	)
	return err
}

// EndSession sets the ended_at timestamp.
func (s *Store) EndSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return err
}

// SaveTurn inserts a completed turn record.
func (s *Store) SaveTurn(ctx context.Context, rec TurnRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, created_at, transcript, response, status, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.SessionID, rec.CreatedAt.UTC(), rec.Transcript, rec.Response, rec.Status, rec.DurationMs,
	)
	return err
}

// SaveTurnAsync persists a turn off the hot path. Persistence failures are
// logged, never surfaced to the live session.
func (s *Store) SaveTurnAsync(rec TurnRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.SaveTurn(ctx, rec); err != nil {
			s.log.Warn("turn persist failed", "turn_id", rec.ID, "error", err)
		}
	}()
}

// ListTurns returns a session's turns ordered oldest first.
func (s *Store) ListTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, created_at, transcript, response, status, duration_ms
		 FROM turns WHERE session_id = $1 ORDER BY created_at ASC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		if err = rows.Scan(&rec.ID, &rec.SessionID, &rec.CreatedAt, &rec.Transcript, &rec.Response, &rec.Status, &rec.DurationMs); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
