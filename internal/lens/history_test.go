package lens

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHistoryCap(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(0)
	for i := 0; i < 14; i++ {
		require.NoError(t, h.Record(ctx, fmt.Sprintf("romantic:%d", i)))
	}

	n, err := h.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryCap, n)

	all, err := h.Recent(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "romantic:4", all[0], "oldest entries are dropped first")
	assert.Equal(t, "romantic:13", all[len(all)-1])
}

func TestMemoryHistoryRecentWindow(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(10)
	require.NoError(t, h.Record(ctx, "a:1", "a:2", "a:3"))

	recent, err := h.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:2", "a:3"}, recent)

	none, err := h.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestComboRoundTrip(t *testing.T) {
	a, id, ok := SplitCombo(Combo(ArchetypeSovereign, WithheldCore))
	require.True(t, ok)
	assert.Equal(t, ArchetypeSovereign, a)
	assert.Equal(t, WithheldCore, id)

	_, _, ok = SplitCombo("no-separator")
	assert.False(t, ok)
}

func TestEngineComboOps(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(NewMemoryHistory(10), DefaultConfig(), nil, nil)

	require.NoError(t, e.RecordCombo(ctx, "Bodyguard", MoralFriction))
	blocked, err := e.IsComboBlocked(ctx, "knight", MoralFriction)
	require.NoError(t, err)
	assert.True(t, blocked, "aliases of the same archetype share history")

	for i := 0; i < 5; i++ {
		require.NoError(t, e.RecordCombo(ctx, "romantic", VolatileMirror))
	}
	blocked, err = e.IsComboBlocked(ctx, "guardian", MoralFriction)
	require.NoError(t, err)
	assert.False(t, blocked, "combo slid out of the five-entry window")

	recent, err := e.GetRecentCombos(ctx)
	require.NoError(t, err)
	assert.Len(t, recent, DefaultHistoryWindow)
}
