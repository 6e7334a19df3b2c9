package lens

import (
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/storyweave/internal/gate"
)

// #region roles

// Role names which lead a lens list belongs to.
type Role string

const (
	RoleProtagonist  Role = "protagonist"
	RoleLoveInterest Role = "love_interest"
)

// #endregion roles

// #region input

// AssignInput is everything the story-creation boundary supplies.
type AssignInput struct {
	ProtagonistArchetype  string
	LoveInterestArchetype string
	Genre                 string
	Tone                  string
	StoryLength           gate.LengthLimit
	Complex               bool
	Overrides             map[Role][]ID // replaces selection for that role
}

// #endregion input

// #region meta

// Meta is the mutable per-lens state carried with the story.
type Meta struct {
	Lens                ID       `json:"lens"`
	Resistance          float64  `json:"resistance"`
	RevealTarget        *float64 `json:"reveal_target,omitempty"`
	Revealed            bool     `json:"revealed"`
	SetupBeats          int      `json:"setup_beats"`
	BaselineEstablished bool     `json:"baseline_established"`
	CompetenceRevealed  bool     `json:"competence_revealed"`
	CoreRevealed        bool     `json:"core_revealed"`
	CostFreeStreak      int      `json:"cost_free_streak"`
	Victories           int      `json:"victories"`
	Costs               int      `json:"costs"`
	Failures            int      `json:"failures"`
	PacingVariation     float64  `json:"pacing_variation,omitempty"`
	ForcedRepetition    bool     `json:"forced_repetition,omitempty"`
	LastProgress        float64  `json:"last_progress"`
}

// #endregion meta

// #region result

// Character is one lead's assignment.
type Character struct {
	Archetype Archetype    `json:"archetype"`
	Lenses    []ID         `json:"lenses"`
	Meta      map[ID]*Meta `json:"meta"`
}

// Primary returns the first assigned lens, or "" if none.
func (c Character) Primary() ID {
	if len(c.Lenses) == 0 {
		return ""
	}
	return c.Lenses[0]
}

// Result is the persisted lens assignment of a story.
type Result struct {
	Protagonist  Character `json:"protagonist"`
	LoveInterest Character `json:"love_interest"`
	Genre        string    `json:"genre"`
	Tone         string    `json:"tone"`
	Selector     uint32    `json:"selector"`
	HistoryLen   int       `json:"history_len"`
	Relaxed      bool      `json:"relaxed,omitempty"` // produced by the fallback reassignment
	AssignedAt   time.Time `json:"assigned_at"`
}

// Character returns the lead for role.
func (r *Result) Character(role Role) *Character {
	if role == RoleLoveInterest {
		return &r.LoveInterest
	}
	return &r.Protagonist
}

// #endregion result

// #region errors

var (
	ErrAssignmentInvariant = errors.New("lens assignment invariant violated")
	ErrUnknownLens         = errors.New("unknown lens")
	ErrUnknownBeat         = errors.New("unknown beat type")
)

// AssignmentError is the blocking failure raised when both the assignment
// and its relaxed fallback are invalid. Generation must not proceed.
type AssignmentError struct {
	First  error
	Second error
}

func (e *AssignmentError) Error() string {
	return fmt.Sprintf("lens assignment rejected after fallback: %v; fallback: %v", e.First, e.Second)
}

func (e *AssignmentError) Unwrap() []error {
	return []error{e.First, e.Second}
}

// #endregion errors
