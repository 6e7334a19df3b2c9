package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/danielpatrickdp/storyweave/internal/logging"
)

// #region trace-sink

// TraceSink receives every finished turn, aborted ones included.
type TraceSink interface {
	RecordTurn(ctx context.Context, res *TurnResult) error
}

// SQLTraceSink appends turns to the turn_log table.
type SQLTraceSink struct {
	db *sql.DB
}

// NewSQLTraceSink ensures the turn_log table exists on db.
func NewSQLTraceSink(db *sql.DB) (*SQLTraceSink, error) {
	if err := logging.EnsureTurnLog(db); err != nil {
		return nil, err
	}
	return &SQLTraceSink{db: db}, nil
}

// RecordTurn writes one row.
func (s *SQLTraceSink) RecordTurn(_ context.Context, res *TurnResult) error {
	entry, err := turnEntry(res)
	if err != nil {
		return err
	}
	return logging.LogTurn(s.db, entry)
}

func turnEntry(res *TurnResult) (logging.TurnEntry, error) {
	errs, err := json.Marshal(res.Errors)
	if err != nil {
		return logging.TurnEntry{}, fmt.Errorf("marshal errors: %w", err)
	}
	ms := make(map[Phase]int64, len(res.Timing))
	for p, d := range res.Timing {
		ms[p] = d.Milliseconds()
	}
	timing, err := json.Marshal(ms)
	if err != nil {
		return logging.TurnEntry{}, fmt.Errorf("marshal timing: %w", err)
	}

	entry := logging.TurnEntry{
		TurnID:             res.TurnID,
		Tier:               string(res.Gate.Tier),
		GateCode:           res.Gate.GateCode,
		FinalPhase:         string(res.State.Phase),
		RendererUsed:       string(res.Renderer),
		UsedFallbackAuthor: res.UsedFallbackAuthor,
		FateStumbled:       res.FateStumbled,
		ForcedInterruption: res.ForcedInterruption,
		CascadeUsed:        res.State.CascadeUsed,
		TimingJSON:         string(timing),
		OutputChars:        len(res.FinalOutput),
	}
	if len(res.Errors) > 0 {
		entry.ErrorsJSON = string(errs)
	}
	return entry, nil
}

// #endregion

// #region memory-sink

// MemorySink keeps results in memory; used by replay and tests.
type MemorySink struct {
	mu      sync.Mutex
	results []*TurnResult
}

// RecordTurn appends res.
func (m *MemorySink) RecordTurn(_ context.Context, res *TurnResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

// Results returns every recorded turn in order.
func (m *MemorySink) Results() []*TurnResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*TurnResult(nil), m.results...)
}

// #endregion
