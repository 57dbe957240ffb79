// Package audit keeps an append-only sqlite log of submitted choices and
// battle outcomes for post-match review. Nothing here is read back to
// resume a battle.
package audit

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

	"showdown-pilot/orchestrator"
)

type Store struct {
	db *sql.DB
}

// Open creates the database file and its parent directory when missing.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("audit: empty sqlite database path")
	}
	if path != ":memory:" {
		if parent := filepath.Dir(path); parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, fmt.Errorf("audit: create %s: %w", parent, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("audit: %s: %w", pragma, err)
		}
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS matches (
    id            TEXT PRIMARY KEY,
    room          TEXT NOT NULL,
    format        TEXT NOT NULL,
    provider      TEXT NOT NULL,
    started_at_ms INTEGER NOT NULL,
    ended_at_ms   INTEGER,
    winner        TEXT,
    tie           INTEGER NOT NULL DEFAULT 0,
    turns         INTEGER
);
CREATE TABLE IF NOT EXISTS decisions (
    id         TEXT PRIMARY KEY,
    match_id   TEXT NOT NULL REFERENCES matches(id),
    seq        INTEGER NOT NULL,
    turn       INTEGER NOT NULL,
    rqid       INTEGER NOT NULL,
    kind       TEXT NOT NULL,
    command    TEXT NOT NULL,
    provider   TEXT NOT NULL,
    fallback   INTEGER NOT NULL,
    retry      INTEGER NOT NULL,
    latency_ms INTEGER NOT NULL,
    created_at_ms INTEGER NOT NULL,
    UNIQUE (match_id, seq)
);
`)
	if err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Match records the decisions of one battle. It satisfies
// orchestrator.Recorder.
type Match struct {
	ID    string
	store *Store
	seq   int
}

func (s *Store) BeginMatch(ctx context.Context, room, format, provider string) (*Match, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO matches (id, room, format, provider, started_at_ms) VALUES (?, ?, ?, ?, ?)
`, id, room, format, provider, time.Now().UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("audit: begin match %s: %w", room, err)
	}
	return &Match{ID: id, store: s}, nil
}

// RecordDecision is only called from the orchestrator loop, so seq needs no
// lock.
func (m *Match) RecordDecision(ctx context.Context, r orchestrator.Record) error {
	m.seq++
	_, err := m.store.db.ExecContext(ctx, `
INSERT INTO decisions (
    id, match_id, seq, turn, rqid, kind, command, provider, fallback, retry, latency_ms, created_at_ms
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, uuid.NewString(), m.ID, m.seq, r.Turn, r.RQID, r.Kind, r.Command, r.Provider,
		r.Fallback, r.Retry, r.Latency.Milliseconds(), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("audit: record decision %d: %w", m.seq, err)
	}
	return nil
}

func (m *Match) RecordOutcome(ctx context.Context, o orchestrator.Outcome) error {
	_, err := m.store.db.ExecContext(ctx, `
UPDATE matches SET ended_at_ms = ?, winner = ?, tie = ?, turns = ? WHERE id = ?
`, time.Now().UTC().UnixMilli(), o.Winner, o.Tie, o.Turns, m.ID)
	if err != nil {
		return fmt.Errorf("audit: record outcome: %w", err)
	}
	return nil
}

// Decisions lists a match's records in submission order.
func (s *Store) Decisions(ctx context.Context, matchID string) ([]orchestrator.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT turn, rqid, kind, command, provider, fallback, retry, latency_ms
FROM decisions WHERE match_id = ? ORDER BY seq
`, matchID)
	if err != nil {
		return nil, fmt.Errorf("audit: list decisions: %w", err)
	}
	defer rows.Close()

	var out []orchestrator.Record
	for rows.Next() {
		var (
			r         orchestrator.Record
			latencyMs int64
		)
		if err := rows.Scan(&r.Turn, &r.RQID, &r.Kind, &r.Command, &r.Provider, &r.Fallback, &r.Retry, &latencyMs); err != nil {
			return nil, fmt.Errorf("audit: scan decision: %w", err)
		}
		r.Latency = time.Duration(latencyMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Outcome returns the recorded result, or false while the match is open.
func (s *Store) Outcome(ctx context.Context, matchID string) (orchestrator.Outcome, bool, error) {
	var (
		winner sql.NullString
		tie    bool
		turns  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT winner, tie, turns FROM matches WHERE id = ?`, matchID).
		Scan(&winner, &tie, &turns)
	if errors.Is(err, sql.ErrNoRows) {
		return orchestrator.Outcome{}, false, nil
	}
	if err != nil {
		return orchestrator.Outcome{}, false, fmt.Errorf("audit: read outcome: %w", err)
	}
	if !turns.Valid {
		return orchestrator.Outcome{}, false, nil
	}
	return orchestrator.Outcome{Winner: winner.String, Tie: tie, Turns: int(turns.Int64)}, true, nil
}
