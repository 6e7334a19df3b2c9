package logging

import "time"

// #region turn-entry
// TurnEntry is a single row in the turn_log table.
type TurnEntry struct {
	TurnID             string
	Tier               string
	GateCode           string
	FinalPhase         string
	RendererUsed       string // role name, "" when no render ran
	UsedFallbackAuthor bool
	FateStumbled       bool
	ForcedInterruption bool
	CascadeUsed        bool
	ErrorsJSON         string // []ErrorRecord as JSON
	TimingJSON         string // phase -> milliseconds
	OutputChars        int
	CreatedAt          time.Time
}
// #endregion turn-entry
