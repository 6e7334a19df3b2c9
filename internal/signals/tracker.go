package signals

import (
	"fmt"
	"sort"
	"strings"
)

// #region tracker

// Tracker aggregates one session's behavioral signals. It has a single
// writer and is never shared across sessions.
type Tracker struct {
	categories    map[Category]int
	intensities   []Intensity
	interruptions int
	abandonments  int
	escalations   []int
	archetypes    map[string]int
	totalTurns    int
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset clears every counter.
func (t *Tracker) Reset() {
	t.categories = make(map[Category]int)
	t.intensities = nil
	t.interruptions = 0
	t.abandonments = 0
	t.escalations = nil
	t.archetypes = make(map[string]int)
	t.totalTurns = 0
}

// TotalTurns reports how many turn signals were recorded.
func (t *Tracker) TotalTurns() int {
	return t.totalTurns
}

// #endregion tracker

// #region record

// RecordSignal folds one signal into the counters.
func (t *Tracker) RecordSignal(typ SignalType, data SignalData) error {
	switch typ {
	case SignalTurn:
		t.totalTurns++
	case SignalCategorySelected:
		if data.Category == "" {
			return fmt.Errorf("category signal without category")
		}
		t.categories[data.Category]++
	case SignalIntensity:
		switch data.Intensity {
		case IntensityLow, IntensityMedium, IntensityHigh, IntensityPeak:
		default:
			return fmt.Errorf("unknown intensity %q", data.Intensity)
		}
		t.intensities = append(t.intensities, data.Intensity)
	case SignalInterruption:
		t.interruptions++
	case SignalAbandonment:
		t.abandonments++
	case SignalEscalation:
		// Turn signals land at COMPLETE, so the turn in progress is one past the count.
		t.escalations = append(t.escalations, t.totalTurns+1)
	case SignalArchetypeSelected:
		name := strings.ToLower(strings.TrimSpace(data.Archetype))
		if name == "" {
			return fmt.Errorf("archetype signal without archetype")
		}
		t.archetypes[name]++
	default:
		return fmt.Errorf("unknown signal type %q", typ)
	}
	return nil
}

// #endregion record

// #region infer

// InferPreferences summarizes the counters. It does not mutate the Tracker.
func (t *Tracker) InferPreferences() Preferences {
	var p Preferences
	if t.totalTurns < minTurns {
		return p
	}

	total := 0
	for _, n := range t.categories {
		total += n
	}
	if total >= minCategorySelections {
		p.PrefersTension = shareTri(t.categories[CategoryTension], total)
		p.PrefersTenderness = shareTri(t.categories[CategoryTenderness], total)
		p.PrefersBanter = shareTri(t.categories[CategoryBanter], total)
	}

	if t.interruptions >= minInterruptions {
		if t.abandonments > 0 {
			p.DislikesInterruption = Yes
		} else {
			p.DislikesInterruption = No
		}
	}

	if len(t.intensities) >= intensityWindow {
		recent := t.intensities[len(t.intensities)-intensityWindow:]
		peaks := 0
		for _, lvl := range recent {
			if lvl == IntensityPeak {
				peaks++
			}
		}
		switch peaks {
		case intensityWindow:
			p.SustainsHighIntensity = Yes
		case 0:
			p.SustainsHighIntensity = No
		}
	}

	if len(t.escalations) > 0 {
		if t.escalations[0] <= earlyTurnThreshold {
			p.EscalatesEarly = Yes
		} else {
			p.EscalatesEarly = No
		}
	}

	p.FavoredArchetype = t.favoredArchetype()
	return p
}

func shareTri(n, total int) Tri {
	share := float64(n) / float64(total)
	switch {
	case share >= preferShare:
		return Yes
	case share <= avoidShare:
		return No
	}
	return Unknown
}

func (t *Tracker) favoredArchetype() string {
	names := make([]string, 0, len(t.archetypes))
	for name := range t.archetypes {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestCount := "", 0
	for _, name := range names {
		if n := t.archetypes[name]; n > bestCount {
			best, bestCount = name, n
		}
	}
	if bestCount < minArchetypePicks {
		return ""
	}
	return best
}

// #endregion infer

// #region bias

// BuildBiasBlock renders the inferred preferences as advisory prose for the
// author prompt. Empty when nothing cleared its threshold.
func (t *Tracker) BuildBiasBlock() string {
	p := t.InferPreferences()

	var phrases []string
	add := func(s string) {
		if len(phrases) < maxBiasPhrases {
			phrases = append(phrases, s)
		}
	}

	switch p.SustainsHighIntensity {
	case Yes:
		add("The reader has stayed at peak intensity; keep the heat steady rather than cooling it")
	case No:
		add("The reader has not lingered at peak intensity; let heat build slowly")
	}
	if p.DislikesInterruption == Yes {
		add("avoid breaking momentum with abrupt interruptions")
	}
	if p.PrefersTension == Yes {
		add("lean into unresolved tension")
	} else if p.PrefersTenderness == Yes {
		add("give tender moments room to breathe")
	}
	if p.PrefersBanter == Yes {
		add("let dialogue carry playful friction")
	}
	switch p.EscalatesEarly {
	case Yes:
		add("the reader escalates early, so do not stall the opening")
	case No:
		add("the reader favors a slow burn before escalation")
	}
	if p.FavoredArchetype != "" {
		add("the reader keeps choosing the " + p.FavoredArchetype + " archetype")
	}

	if len(phrases) == 0 {
		return ""
	}
	first := phrases[0]
	first = strings.ToUpper(first[:1]) + first[1:]
	if len(phrases) == 1 {
		return "Reader bias: " + first + "."
	}
	return "Reader bias: " + first + "; " + strings.Join(phrases[1:], "; ") + "."
}

// #endregion bias
