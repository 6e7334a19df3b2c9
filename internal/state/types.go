package state

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/storyweave/internal/lens"
)

// ErrNotFound is returned when a story has no stored assignment.
var ErrNotFound = errors.New("not found")

// #region assignment-record
// AssignmentRecord is one persisted lens assignment.
type AssignmentRecord struct {
	StoryID   string
	Result    *lens.Result
	UpdatedAt time.Time
}
// #endregion assignment-record

// #region history-entry
// HistoryEntry is one row of the global lens history.
type HistoryEntry struct {
	ID        int64
	Combo     string
	CreatedAt time.Time
}
// #endregion history-entry
