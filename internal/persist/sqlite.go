package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"replyd/internal/common/fsutil"
	"replyd/internal/convo"
	"replyd/internal/fallback"
)

var _ fallback.Corpus = (*SQLiteStore)(nil)

// SQLiteStore persists turns and fallback corpora in one SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tone TEXT NOT NULL DEFAULT '',
	at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS turns_session ON turns(session_id, id);
CREATE TABLE IF NOT EXISTS corpus (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL DEFAULT '',
	response TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS corpus_user ON corpus(user_id, id);
`

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	path, err := fsutil.PrepareFile(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID, userID string, t convo.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, user_id, role, content, tone, at_unix_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, userID, string(t.Role), t.Text, t.Tone, t.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadRecentTurns(ctx context.Context, sessionID string, limit int) ([]convo.Turn, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tone, at_unix_ms FROM (
			SELECT id, role, content, tone, at_unix_ms FROM turns WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()
	var out []convo.Turn
	for rows.Next() {
		var (
			role, text, tone string
			ms               int64
		)
		if err := rows.Scan(&role, &text, &tone, &ms); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, convo.Turn{Role: convo.Role(role), Text: text, Tone: tone, At: time.UnixMilli(ms).UTC()})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SessionOwner(ctx context.Context, sessionID string) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM turns WHERE session_id = ? ORDER BY id ASC LIMIT 1`, sessionID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query owner: %w", err)
	}
	return owner, nil
}

// Entries implements fallback.Corpus in insertion order.
func (s *SQLiteStore) Entries(ctx context.Context, userID string) ([]fallback.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, prompt, response FROM corpus WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query corpus: %w", err)
	}
	defer rows.Close()
	var out []fallback.Entry
	for rows.Next() {
		var e fallback.Entry
		if err := rows.Scan(&e.Category, &e.Prompt, &e.Response); err != nil {
			return nil, fmt.Errorf("scan corpus: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ImportCorpus appends entries for userID in one transaction. With replace
// set, the user's existing entries are removed first.
func (s *SQLiteStore) ImportCorpus(ctx context.Context, userID string, entries []fallback.Entry, replace bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM corpus WHERE user_id = ?`, userID); err != nil {
			return 0, fmt.Errorf("clear corpus: %w", err)
		}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO corpus (user_id, category, prompt, response) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	n := 0
	for _, e := range entries {
		if e.Response == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, userID, e.Category, e.Prompt, e.Response); err != nil {
			return 0, fmt.Errorf("insert corpus entry: %w", err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
