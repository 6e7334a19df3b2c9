// Package lens assigns behavioral lenses to a story's two leads and answers
// pacing, resistance and reveal questions about them as the story advances.
package lens

// #region ids

// ID identifies one of the canonical lenses.
type ID string

const (
	WithheldCore   ID = "withheld_core"
	MoralFriction  ID = "moral_friction"
	Underestimated ID = "underestimated"
	VolatileMirror ID = "volatile_mirror"
)

// All returns every lens id in canonical order. Pools are always built in
// this order so selection by index is reproducible.
func All() []ID {
	return []ID{WithheldCore, MoralFriction, Underestimated, VolatileMirror}
}

// #endregion ids

// #region profile-types

// Decay names how a lens's resistance evolves.
type Decay string

const (
	DecayLinear      Decay = "linear"      // falls to Floor by FloorBy progress
	DecayOscillating Decay = "oscillating" // Initial when misaligned, Floor when aligned
	DecayMirrored    Decay = "mirrored"    // complement of the protagonist's openness
	DecayDiscrete    Decay = "discrete"    // jumps from Initial to Floor once revealed
)

// ResistanceProfile is a lens's narrative pressure curve.
type ResistanceProfile struct {
	Initial float64
	Floor   float64
	Decay   Decay
	FloorBy float64 // progress at which linear decay bottoms out
}

// RevealSchedule bounds when a lens's secret must surface.
type RevealSchedule struct {
	Required         bool
	MinProgress      float64
	MaxProgress      float64
	DeadlineProgress float64
	SetupBeats       int // baseline beats that must land before the reveal
}

// PacingBias is the raw pacing pull a lens exerts on prompt construction.
type PacingBias struct {
	RevealDelay     float64
	IntimacyBrake   float64
	DialogueDensity float64
}

// Definition is the static description of a lens.
type Definition struct {
	ID           ID
	TensionTheme string
	FailureMode  string // documentation only
	Pacing       PacingBias
	Resistance   ResistanceProfile
	Reveal       RevealSchedule
	CostFreeCap  int  // victories in a row before one must carry a cost; 0 disables
	ShareExempt  bool // may sit on both characters at once
}

// #endregion profile-types

// #region definitions

var definitions = map[ID]Definition{
	WithheldCore: {
		ID:           WithheldCore,
		TensionTheme: "the secret that cannot be spoken",
		FailureMode:  "the secret leaks early and the tension collapses into exposition",
		Pacing:       PacingBias{RevealDelay: 0.30, IntimacyBrake: 0.20, DialogueDensity: -0.10},
		Resistance:   ResistanceProfile{Initial: 0.8, Floor: 0.2, Decay: DecayLinear, FloorBy: 0.85},
		Reveal: RevealSchedule{
			Required:         true,
			MinProgress:      0.40,
			MaxProgress:      0.70,
			DeadlineProgress: 0.85,
			SetupBeats:       2,
		},
	},
	MoralFriction: {
		ID:           MoralFriction,
		TensionTheme: "wanting what one's own code forbids",
		FailureMode:  "victories come free and the code stops mattering",
		Pacing:       PacingBias{RevealDelay: 0, IntimacyBrake: 0.25, DialogueDensity: 0.20},
		Resistance:   ResistanceProfile{Initial: 0.7, Floor: 0.35, Decay: DecayOscillating},
		CostFreeCap:  2,
		ShareExempt:  true,
	},
	Underestimated: {
		ID:           Underestimated,
		TensionTheme: "competence no one else sees",
		FailureMode:  "the competence is shown too often to ever surprise",
		Pacing:       PacingBias{RevealDelay: 0.15, IntimacyBrake: 0.05, DialogueDensity: 0.10},
		Resistance:   ResistanceProfile{Initial: 0.6, Floor: 0.2, Decay: DecayDiscrete},
		Reveal: RevealSchedule{
			Required:         true,
			MinProgress:      0.25,
			MaxProgress:      0.50,
			DeadlineProgress: 0.60,
			SetupBeats:       1,
		},
	},
	VolatileMirror: {
		ID:           VolatileMirror,
		TensionTheme: "matching heat with heat",
		FailureMode:  "both characters escalate with nothing left to push against",
		Pacing:       PacingBias{RevealDelay: -0.10, IntimacyBrake: -0.15, DialogueDensity: 0.25},
		Resistance:   ResistanceProfile{Initial: 0.5, Floor: 0.1, Decay: DecayMirrored},
	},
}

// Lookup returns a lens definition.
func Lookup(id ID) (Definition, bool) {
	d, ok := definitions[id]
	return d, ok
}

// #endregion definitions

// #region exclusions

// exclusions lists lens pairs that may never be split across the two
// characters, in either direction, whatever their share exemption.
var exclusions = map[ID][]ID{
	WithheldCore:   {VolatileMirror},
	VolatileMirror: {WithheldCore},
}

// Excluded reports whether a protagonist carrying p forbids l on the love interest.
func Excluded(p, l ID) bool {
	for _, x := range exclusions[p] {
		if x == l {
			return true
		}
	}
	return false
}

// #endregion exclusions
