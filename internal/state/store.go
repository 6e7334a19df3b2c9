package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/storyweave/internal/lens"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS lens_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	combo       TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lens_assignments (
	story_id    TEXT PRIMARY KEY,
	result_json TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store persists lens history and per-story assignments in SQLite.
// It satisfies lens.HistoryStore.
type Store struct {
	db         *sql.DB
	historyCap int
}

var _ lens.HistoryStore = (*Store)(nil)
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations. historyCap bounds the
// lens history; <= 0 uses lens.DefaultHistoryCap.
func NewStore(dbPath string, historyCap int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if historyCap <= 0 {
		historyCap = lens.DefaultHistoryCap
	}
	return &Store{db: db, historyCap: historyCap}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB so the turn log can share the file.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region history
// Recent returns up to n of the newest combos, oldest first.
func (s *Store) Recent(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT combo FROM (
			SELECT id, combo FROM lens_history ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent combos: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var combo string
		if err := rows.Scan(&combo); err != nil {
			return nil, fmt.Errorf("scan combo: %w", err)
		}
		out = append(out, combo)
	}
	return out, rows.Err()
}

// Len returns the number of stored history entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lens_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// Record appends combos and trims the table to the cap in one transaction.
func (s *Store) Record(ctx context.Context, combos ...string) error {
	if len(combos) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, combo := range combos {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lens_history (combo, created_at) VALUES (?, ?)`, combo, now,
		); err != nil {
			return fmt.Errorf("insert combo: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM lens_history WHERE id NOT IN (
			SELECT id FROM lens_history ORDER BY id DESC LIMIT ?
		 )`, s.historyCap,
	)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	return tx.Commit()
}

// History lists every stored entry, oldest first.
func (s *Store) History(ctx context.Context) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, combo, created_at FROM lens_history ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var createdStr string
		if err := rows.Scan(&e.ID, &e.Combo, &createdStr); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearHistory drops every history entry.
func (s *Store) ClearHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM lens_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
// #endregion history

// #region assignments
// CreateAssignment stores res under a fresh story ID and returns the ID.
func (s *Store) CreateAssignment(ctx context.Context, res *lens.Result) (string, error) {
	id := uuid.New().String()
	if err := s.SaveAssignment(ctx, id, res); err != nil {
		return "", err
	}
	return id, nil
}

// SaveAssignment upserts the assignment of a story.
func (s *Store) SaveAssignment(ctx context.Context, storyID string, res *lens.Result) error {
	if res == nil {
		return fmt.Errorf("save assignment %s: nil result", storyID)
	}
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal assignment: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lens_assignments (story_id, result_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(story_id) DO UPDATE SET
			result_json = excluded.result_json,
			updated_at  = excluded.updated_at`,
		storyID, string(body), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert assignment %s: %w", storyID, err)
	}
	return nil
}

// LoadAssignment reads the assignment of a story.
func (s *Store) LoadAssignment(ctx context.Context, storyID string) (AssignmentRecord, error) {
	var body, updatedStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT result_json, updated_at FROM lens_assignments WHERE story_id = ?`, storyID,
	).Scan(&body, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return AssignmentRecord{}, fmt.Errorf("assignment %s: %w", storyID, ErrNotFound)
	}
	if err != nil {
		return AssignmentRecord{}, fmt.Errorf("get assignment %s: %w", storyID, err)
	}
	return decodeAssignment(storyID, body, updatedStr)
}

// ListAssignments returns the most recently updated assignments.
func (s *Store) ListAssignments(ctx context.Context, limit int) ([]AssignmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT story_id, result_json, updated_at
		 FROM lens_assignments ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var records []AssignmentRecord
	for rows.Next() {
		var id, body, updatedStr string
		if err := rows.Scan(&id, &body, &updatedStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec, err := decodeAssignment(id, body, updatedStr)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func decodeAssignment(storyID, body, updatedStr string) (AssignmentRecord, error) {
	rec := AssignmentRecord{StoryID: storyID, Result: &lens.Result{}}
	if err := json.Unmarshal([]byte(body), rec.Result); err != nil {
		return AssignmentRecord{}, fmt.Errorf("unmarshal assignment %s: %w", storyID, err)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return rec, nil
}
// #endregion assignments
