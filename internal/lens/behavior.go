package lens

import (
	"fmt"
	"strings"
)

// #region beats

// BeatType classifies a story beat for metadata updates.
type BeatType string

const (
	BeatVictory             BeatType = "victory"
	BeatCost                BeatType = "cost"
	BeatFailure             BeatType = "failure"
	BeatCompetenceReveal    BeatType = "competence_reveal"
	BeatCoreReveal          BeatType = "core_reveal"
	BeatBaselineEstablished BeatType = "baseline_established"
)

// ParseBeat resolves a beat name.
func ParseBeat(s string) (BeatType, error) {
	b := BeatType(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case BeatVictory, BeatCost, BeatFailure, BeatCompetenceReveal, BeatCoreReveal, BeatBaselineEstablished:
		return b, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBeat, s)
}

// EmotionalState is the protagonist's current disposition, supplied by the caller.
type EmotionalState struct {
	Aligned  bool    // acting in line with their own code
	Openness float64 // 0 closed .. 1 open
}

// neutralOpenness is assumed when no emotional state is supplied.
const neutralOpenness = 0.5

// #endregion beats

// #region resistance

// Resistance computes a lens's current pressure per its decay mode.
func Resistance(id ID, meta *Meta, progress float64, emo *EmotionalState) float64 {
	def, ok := definitions[id]
	if !ok {
		return 0
	}
	r := def.Resistance
	switch r.Decay {
	case DecayLinear:
		frac := 1.0
		if r.FloorBy > 0 {
			frac = clamp(progress/r.FloorBy, 0, 1)
		}
		return r.Initial - (r.Initial-r.Floor)*frac
	case DecayOscillating:
		if emo != nil && emo.Aligned {
			return r.Floor
		}
		return r.Initial
	case DecayMirrored:
		openness := neutralOpenness
		if emo != nil {
			openness = clamp(emo.Openness, 0, 1)
		}
		return clamp(1-openness, r.Floor, 1)
	case DecayDiscrete:
		if meta != nil && meta.Revealed {
			return r.Floor
		}
		return r.Initial
	}
	return r.Initial
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion resistance

// #region gating

// IsRevealGated reports whether the lens's reveal must still be held back:
// progress precedes the minimum threshold or setup beats are incomplete.
func IsRevealGated(id ID, meta *Meta, progress float64) bool {
	def, ok := definitions[id]
	if !ok || !def.Reveal.Required {
		return false
	}
	if progress < def.Reveal.MinProgress {
		return true
	}
	return meta == nil || meta.SetupBeats < def.Reveal.SetupBeats
}

// IsRevealOverdue reports whether a scheduled reveal has passed its deadline
// without happening.
func IsRevealOverdue(id ID, meta *Meta, progress float64) bool {
	def, ok := definitions[id]
	if !ok || !def.Reveal.Required || (meta != nil && meta.Revealed) {
		return false
	}
	return progress >= def.Reveal.DeadlineProgress
}

// RequiresCostAfterVictory reports whether the cost-free streak hit the cap.
func RequiresCostAfterVictory(id ID, meta *Meta) bool {
	def, ok := definitions[id]
	if !ok || def.CostFreeCap <= 0 || meta == nil {
		return false
	}
	return meta.CostFreeStreak >= def.CostFreeCap
}

// #endregion gating

// #region pacing

// Modifiers is the pacing pull handed to prompt construction.
type Modifiers struct {
	RevealDelay     float64
	IntimacyBrake   float64
	DialogueDensity float64
	Variation       float64 // recorded repetition penalty, 0 if none
}

// PacingModifiers extracts a lens's raw pacing bias, damped by any recorded
// pacing-variation penalty.
func PacingModifiers(id ID, meta *Meta) Modifiers {
	def, ok := definitions[id]
	if !ok {
		return Modifiers{}
	}
	var variation float64
	if meta != nil {
		variation = meta.PacingVariation
	}
	scale := 1 - variation
	return Modifiers{
		RevealDelay:     def.Pacing.RevealDelay * scale,
		IntimacyBrake:   def.Pacing.IntimacyBrake * scale,
		DialogueDensity: def.Pacing.DialogueDensity * scale,
		Variation:       variation,
	}
}

// #endregion pacing

// #region update

// UpdateMeta folds one beat into a lens's metadata and recomputes resistance.
func UpdateMeta(meta *Meta, id ID, beat BeatType, progress float64) error {
	if meta == nil {
		return fmt.Errorf("update %s: nil metadata", id)
	}
	if _, ok := definitions[id]; !ok {
		return fmt.Errorf("update: %w: %q", ErrUnknownLens, id)
	}

	switch beat {
	case BeatVictory:
		meta.Victories++
		meta.CostFreeStreak++
	case BeatCost:
		meta.Costs++
		meta.CostFreeStreak = 0
	case BeatFailure:
		meta.Failures++
		meta.CostFreeStreak = 0
	case BeatCompetenceReveal:
		meta.CompetenceRevealed = true
		if id == Underestimated {
			meta.Revealed = true
		}
	case BeatCoreReveal:
		meta.CoreRevealed = true
		if id == WithheldCore {
			meta.Revealed = true
		}
	case BeatBaselineEstablished:
		meta.BaselineEstablished = true
		meta.SetupBeats++
	default:
		return fmt.Errorf("update %s: %w: %q", id, ErrUnknownBeat, beat)
	}

	meta.LastProgress = progress
	meta.Resistance = Resistance(id, meta, progress, nil)
	return nil
}

// ApplyBeat folds one story beat into every lens of both leads. Lenses
// without metadata get a fresh record first.
func ApplyBeat(r *Result, beat BeatType, progress float64) error {
	if r == nil {
		return fmt.Errorf("apply %s: nil assignment", beat)
	}
	for _, role := range []Role{RoleProtagonist, RoleLoveInterest} {
		ch := r.Character(role)
		if ch.Meta == nil {
			ch.Meta = make(map[ID]*Meta, len(ch.Lenses))
		}
		for _, id := range ch.Lenses {
			meta := ch.Meta[id]
			if meta == nil {
				meta = &Meta{Lens: id}
				ch.Meta[id] = meta
			}
			if err := UpdateMeta(meta, id, beat, progress); err != nil {
				return fmt.Errorf("%s: %w", role, err)
			}
		}
	}
	return nil
}

// #endregion update

// #region directives

// Directives renders the assignment as a compact block for the author prompt.
func Directives(r *Result, progress float64) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, role := range []Role{RoleProtagonist, RoleLoveInterest} {
		ch := r.Character(role)
		for _, id := range ch.Lenses {
			def := definitions[id]
			meta := ch.Meta[id]
			fmt.Fprintf(&b, "- %s (%s): %s. Resistance %.2f.",
				role, ch.Archetype, def.TensionTheme, Resistance(id, meta, progress, nil))
			switch {
			case IsRevealOverdue(id, meta, progress):
				b.WriteString(" The withheld truth is overdue; let it surface now.")
			case IsRevealGated(id, meta, progress):
				b.WriteString(" Keep the withheld truth hidden.")
			}
			if RequiresCostAfterVictory(id, meta) {
				b.WriteString(" The next victory must carry a cost.")
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// #endregion directives
