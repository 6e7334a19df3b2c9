package lens

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/storyweave/internal/gate"
)

func newTestEngine(h HistoryStore) *Engine {
	return NewEngine(h, DefaultConfig(), rand.New(rand.NewPCG(1, 2)), nil)
}

func TestAssignLensesAlwaysValid(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(NewMemoryHistory(DefaultHistoryCap))
	genres := []string{"fantasy", "noir", "contemporary", ""}
	tones := []string{"dark", "playful", ""}

	names := append([]string{"Bad Boy", "childhood-friend", "unheard-of"}, archetypeNames()...)
	for _, p := range names {
		for _, l := range names {
			for _, g := range genres {
				for _, tone := range tones {
					res, err := e.AssignLenses(ctx, AssignInput{
						ProtagonistArchetype:  p,
						LoveInterestArchetype: l,
						Genre:                 g,
						Tone:                  tone,
					})
					require.NoError(t, err, "%s/%s/%s/%s", p, l, g, tone)
					require.NoError(t, ValidateAssignment(res))
					assert.NotEmpty(t, res.Protagonist.Lenses)
					assert.NotEmpty(t, res.LoveInterest.Lenses)
					for _, pl := range res.Protagonist.Lenses {
						for _, ll := range res.LoveInterest.Lenses {
							if pl == ll {
								assert.Equal(t, MoralFriction, pl, "only moral_friction may be shared")
							}
							assert.False(t, Excluded(pl, ll), "%s excludes %s", pl, ll)
						}
					}
				}
			}
		}
	}
}

func archetypeNames() []string {
	out := make([]string, 0, len(Archetypes()))
	for _, a := range Archetypes() {
		out = append(out, string(a))
	}
	return out
}

func TestAssignLensesRepeatable(t *testing.T) {
	in := AssignInput{ProtagonistArchetype: "sovereign", LoveInterestArchetype: "romantic", Genre: "fantasy", Tone: "dark"}

	a, err := newTestEngine(nil).AssignLenses(context.Background(), in)
	require.NoError(t, err)
	b, err := newTestEngine(nil).AssignLenses(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, a.Selector, b.Selector)
	assert.Equal(t, a.Protagonist.Lenses, b.Protagonist.Lenses)
	assert.Equal(t, a.LoveInterest.Lenses, b.LoveInterest.Lenses)
}

func TestDevotedAlwaysUnderestimated(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(DefaultHistoryCap)
	e := newTestEngine(h)
	for i := 0; i < 20; i++ {
		res, err := e.AssignLenses(ctx, AssignInput{
			ProtagonistArchetype:  "devoted",
			LoveInterestArchetype: "guardian",
			Genre:                 fmt.Sprintf("genre-%d", i),
			Tone:                  "warm",
		})
		require.NoError(t, err)
		assert.Equal(t, []ID{Underestimated}, res.Protagonist.Lenses)
		assert.NotContains(t, res.LoveInterest.Lenses, Underestimated)
	}
}

func TestForcedRepetitionRecordsPenalty(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(DefaultHistoryCap)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Record(ctx, "cloaked:withheld_core"))
	}
	e := newTestEngine(h)

	res, err := e.AssignLenses(ctx, AssignInput{ProtagonistArchetype: "cloaked", LoveInterestArchetype: "guardian"})
	require.NoError(t, err)

	require.Equal(t, []ID{WithheldCore}, res.Protagonist.Lenses)
	meta := res.Protagonist.Meta[WithheldCore]
	assert.True(t, meta.ForcedRepetition)
	assert.InDelta(t, DefaultRepetitionPenalty, meta.PacingVariation, 1e-9)
}

func TestBlockedComboAvoidedWhenAlternativeExists(t *testing.T) {
	ctx := context.Background()
	for _, blocked := range []ID{MoralFriction, Underestimated} {
		h := NewMemoryHistory(DefaultHistoryCap)
		require.NoError(t, h.Record(ctx, Combo(ArchetypeGuardian, blocked)))
		e := newTestEngine(h)

		for i := 0; i < 10; i++ {
			res, err := e.AssignLenses(ctx, AssignInput{
				ProtagonistArchetype:  "guardian",
				LoveInterestArchetype: "sovereign",
				Genre:                 fmt.Sprintf("g%d", i),
			})
			require.NoError(t, err)
			assert.NotEqual(t, blocked, res.Protagonist.Primary())
			assert.False(t, res.Protagonist.Meta[res.Protagonist.Primary()].ForcedRepetition)
			// keep the blocked combo inside the window for the next round
			require.NoError(t, h.Record(ctx, Combo(ArchetypeGuardian, blocked)))
		}
	}
}

func TestAssignLensesUniverseFallback(t *testing.T) {
	res, err := newTestEngine(nil).AssignLenses(context.Background(), AssignInput{
		ProtagonistArchetype:  "devoted",
		LoveInterestArchetype: "devoted",
	})
	require.NoError(t, err)
	assert.Equal(t, Underestimated, res.Protagonist.Primary())
	require.Len(t, res.LoveInterest.Lenses, 1)
	assert.NotEqual(t, Underestimated, res.LoveInterest.Primary())
}

func TestComplexStoryAddsSecondaryLens(t *testing.T) {
	in := AssignInput{
		ProtagonistArchetype:  "devoted",
		LoveInterestArchetype: "romantic",
		StoryLength:           gate.LengthAffair,
		Complex:               true,
	}
	res, err := newTestEngine(nil).AssignLenses(context.Background(), in)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ID{MoralFriction, VolatileMirror}, res.LoveInterest.Lenses)

	in.StoryLength = gate.LengthFling
	res, err = newTestEngine(nil).AssignLenses(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, res.LoveInterest.Lenses, 1, "short stories stay single-lens")
}

func TestRevealTargetInsideWindow(t *testing.T) {
	e := newTestEngine(nil)
	for i := 0; i < 25; i++ {
		res, err := e.AssignLenses(context.Background(), AssignInput{
			ProtagonistArchetype:  "cloaked",
			LoveInterestArchetype: "dangerous",
			Genre:                 fmt.Sprintf("g%d", i),
		})
		require.NoError(t, err)
		meta := res.Protagonist.Meta[WithheldCore]
		require.NotNil(t, meta.RevealTarget)
		assert.GreaterOrEqual(t, *meta.RevealTarget, 0.40)
		assert.LessOrEqual(t, *meta.RevealTarget, 0.70)
	}
}

func TestInvalidOverridesFallBackRelaxed(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(DefaultHistoryCap)
	e := newTestEngine(h)

	res, err := e.AssignLenses(ctx, AssignInput{
		ProtagonistArchetype:  "guardian",
		LoveInterestArchetype: "enchanting",
		Overrides: map[Role][]ID{
			RoleProtagonist:  {Underestimated},
			RoleLoveInterest: {Underestimated},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Relaxed)
	require.NoError(t, ValidateAssignment(res))

	n, err := h.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(res.Protagonist.Lenses)+len(res.LoveInterest.Lenses), n)
}

func TestUnknownOverrideRejected(t *testing.T) {
	_, err := newTestEngine(nil).AssignLenses(context.Background(), AssignInput{
		Overrides: map[Role][]ID{RoleProtagonist: {"sparkle"}},
	})
	assert.ErrorIs(t, err, ErrUnknownLens)
}

func TestAssignmentErrorBlocksAndLeavesHistory(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(DefaultHistoryCap)
	e := newTestEngine(h)
	e.build = func(AssignInput, []string, int) *Result { return &Result{} }

	_, err := e.AssignLenses(ctx, AssignInput{ProtagonistArchetype: "romantic", LoveInterestArchetype: "rogue"})
	require.Error(t, err)

	var ae *AssignmentError
	require.True(t, errors.As(err, &ae))
	assert.ErrorIs(t, err, ErrAssignmentInvariant)

	n, err := h.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCanceledAssignmentNotRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := NewMemoryHistory(DefaultHistoryCap)

	_, err := newTestEngine(h).AssignLenses(ctx, AssignInput{ProtagonistArchetype: "romantic"})
	assert.ErrorIs(t, err, context.Canceled)

	n, _ := h.Len(context.Background())
	assert.Zero(t, n)
}

func TestValidateAssignment(t *testing.T) {
	meta := func(id ID) map[ID]*Meta { return map[ID]*Meta{id: {Lens: id}} }

	cases := []struct {
		name string
		p, l ID
		ok   bool
	}{
		{"distinct", WithheldCore, MoralFriction, true},
		{"shared exempt", MoralFriction, MoralFriction, true},
		{"shared", Underestimated, Underestimated, false},
		{"excluded pair", WithheldCore, VolatileMirror, false},
		{"excluded reverse", VolatileMirror, WithheldCore, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &Result{
				Protagonist:  Character{Lenses: []ID{tc.p}, Meta: meta(tc.p)},
				LoveInterest: Character{Lenses: []ID{tc.l}, Meta: meta(tc.l)},
			}
			err := ValidateAssignment(r)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrAssignmentInvariant)
			}
		})
	}

	assert.ErrorIs(t, ValidateAssignment(nil), ErrAssignmentInvariant)
	missing := &Result{
		Protagonist:  Character{Lenses: []ID{WithheldCore}},
		LoveInterest: Character{Lenses: []ID{MoralFriction}, Meta: meta(MoralFriction)},
	}
	assert.ErrorIs(t, ValidateAssignment(missing), ErrAssignmentInvariant)
}

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, ArchetypeDangerous, Canonicalize("  Bad-Boy "))
	assert.Equal(t, ArchetypeDevoted, Canonicalize("Childhood Friend"))
	assert.Equal(t, ArchetypeRomantic, Canonicalize("space pirate"))
	for _, a := range Archetypes() {
		assert.Equal(t, a, Canonicalize(string(a)))
	}
}
