package lens

import (
	"context"
	"strings"
	"sync"
)

const (
	DefaultHistoryCap    = 10
	DefaultHistoryWindow = 5
)

// #region store

// HistoryStore persists the process-wide, capped log of "archetype:lens"
// combos. Concurrent writers may race; the last write wins.
type HistoryStore interface {
	// Recent returns up to n most recent combos, oldest first.
	Recent(ctx context.Context, n int) ([]string, error)
	// Len reports how many combos are stored.
	Len(ctx context.Context) (int, error)
	// Record appends combos and trims the log to its cap.
	Record(ctx context.Context, combos ...string) error
}

// Combo formats a history entry.
func Combo(a Archetype, id ID) string {
	return string(a) + ":" + string(id)
}

// SplitCombo parses a history entry.
func SplitCombo(combo string) (Archetype, ID, bool) {
	a, id, ok := strings.Cut(combo, ":")
	if !ok || a == "" || id == "" {
		return "", "", false
	}
	return Archetype(a), ID(id), true
}

// #endregion store

// #region memory-history

// MemoryHistory is an in-process HistoryStore.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []string
	limit   int
}

// NewMemoryHistory builds an empty store. A non-positive cap selects
// DefaultHistoryCap.
func NewMemoryHistory(limit int) *MemoryHistory {
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	return &MemoryHistory{limit: limit}
}

func (m *MemoryHistory) Recent(_ context.Context, n int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 {
		return nil, nil
	}
	if n > len(m.entries) {
		n = len(m.entries)
	}
	return append([]string(nil), m.entries[len(m.entries)-n:]...), nil
}

func (m *MemoryHistory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *MemoryHistory) Record(_ context.Context, combos ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, combos...)
	if over := len(m.entries) - m.limit; over > 0 {
		m.entries = append([]string(nil), m.entries[over:]...)
	}
	return nil
}

// #endregion memory-history
