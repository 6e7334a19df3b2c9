package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const turnLogSchema = `
CREATE TABLE IF NOT EXISTS turn_log (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	turn_id              TEXT NOT NULL,
	tier                 TEXT NOT NULL,
	gate_code            TEXT NOT NULL,
	final_phase          TEXT NOT NULL,
	renderer_used        TEXT,
	used_fallback_author INTEGER NOT NULL,
	fate_stumbled        INTEGER NOT NULL,
	forced_interruption  INTEGER NOT NULL,
	cascade_used         INTEGER NOT NULL,
	errors_json          TEXT,
	timing_json          TEXT,
	output_chars         INTEGER NOT NULL,
	created_at           TEXT NOT NULL
);
`

// EnsureTurnLog creates the turn_log table if it does not exist.
func EnsureTurnLog(db *sql.DB) error {
	if _, err := db.Exec(turnLogSchema); err != nil {
		return fmt.Errorf("migrate turn_log: %w", err)
	}
	return nil
}
// #endregion schema

// #region log-turn
// LogTurn writes a turn trace entry to the turn_log table.
func LogTurn(db *sql.DB, entry TurnEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO turn_log (turn_id, tier, gate_code, final_phase, renderer_used,
			used_fallback_author, fate_stumbled, forced_interruption, cascade_used,
			errors_json, timing_json, output_chars, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TurnID,
		entry.Tier,
		entry.GateCode,
		entry.FinalPhase,
		nullIfEmpty(entry.RendererUsed),
		entry.UsedFallbackAuthor,
		entry.FateStumbled,
		entry.ForcedInterruption,
		entry.CascadeUsed,
		nullIfEmpty(entry.ErrorsJSON),
		nullIfEmpty(entry.TimingJSON),
		entry.OutputChars,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log turn: %w", err)
	}
	return nil
}
// #endregion log-turn

// #region recent-turns
// RecentTurns returns the newest turn entries, newest first.
func RecentTurns(db *sql.DB, limit int) ([]TurnEntry, error) {
	rows, err := db.Query(
		`SELECT turn_id, tier, gate_code, final_phase, renderer_used,
			used_fallback_author, fate_stumbled, forced_interruption, cascade_used,
			errors_json, timing_json, output_chars, created_at
		 FROM turn_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	var out []TurnEntry
	for rows.Next() {
		var e TurnEntry
		var renderer, errorsJSON, timingJSON sql.NullString
		var createdStr string
		if err := rows.Scan(&e.TurnID, &e.Tier, &e.GateCode, &e.FinalPhase, &renderer,
			&e.UsedFallbackAuthor, &e.FateStumbled, &e.ForcedInterruption, &e.CascadeUsed,
			&errorsJSON, &timingJSON, &e.OutputChars, &createdStr); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		e.RendererUsed = renderer.String
		e.ErrorsJSON = errorsJSON.String
		e.TimingJSON = timingJSON.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion recent-turns

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
