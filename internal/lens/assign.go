package lens

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/storyweave/internal/gate"
)

// DefaultRepetitionPenalty is the pacing-variation penalty recorded when
// anti-repetition has to give way. Tunable, not a physical constant.
const DefaultRepetitionPenalty = 0.15

// #region config

// Config tunes an Engine.
type Config struct {
	Window            int     // how many recent history entries block a combo
	RepetitionPenalty float64 // recorded on a lens chosen despite being blocked
}

// DefaultConfig returns the shipped tuning.
func DefaultConfig() Config {
	return Config{Window: DefaultHistoryWindow, RepetitionPenalty: DefaultRepetitionPenalty}
}

// #endregion config

// #region engine

// Engine assigns lenses. One instance is shared by every story; the
// history store is its only cross-story state.
type Engine struct {
	history HistoryStore
	cfg     Config
	logger  *zap.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand

	build func(in AssignInput, recent []string, historyLen int) *Result
}

// NewEngine wires an Engine. rng drives the reveal-window draws only; nil
// seeds one from the clock.
func NewEngine(history HistoryStore, cfg Config, rng *rand.Rand, logger *zap.Logger) *Engine {
	if history == nil {
		history = NewMemoryHistory(DefaultHistoryCap)
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultHistoryWindow
	}
	if cfg.RepetitionPenalty <= 0 {
		cfg.RepetitionPenalty = DefaultRepetitionPenalty
	}
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>17|1))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{history: history, cfg: cfg, rng: rng, logger: logger.Named("lens")}
	e.build = e.assemble
	return e
}

// #endregion engine

// #region assign

// AssignLenses picks lenses for both leads, validates the result, falls back
// once to a relaxed reassignment if needed, and records the chosen combos.
// History is only written after a valid result exists.
func (e *Engine) AssignLenses(ctx context.Context, in AssignInput) (*Result, error) {
	for _, ids := range in.Overrides {
		for _, id := range ids {
			if _, ok := definitions[id]; !ok {
				return nil, fmt.Errorf("override: %w: %q", ErrUnknownLens, id)
			}
		}
	}

	recent, err := e.history.Recent(ctx, e.cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("read lens history: %w", err)
	}
	historyLen, err := e.history.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("read lens history length: %w", err)
	}

	res := e.build(in, recent, historyLen)
	if first := ValidateAssignment(res); first != nil {
		e.logger.Warn("assignment invalid, retrying relaxed", zap.Error(first))

		relaxed := in
		relaxed.Overrides = nil
		res = e.build(relaxed, nil, historyLen)
		if second := ValidateAssignment(res); second != nil {
			e.logger.Error("assignment rejected",
				zap.String("protagonist", in.ProtagonistArchetype),
				zap.String("love_interest", in.LoveInterestArchetype),
				zap.NamedError("first", first),
				zap.NamedError("fallback", second))
			return nil, &AssignmentError{First: first, Second: second}
		}
		res.Relaxed = true
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.history.Record(ctx, combos(res)...); err != nil {
		return nil, fmt.Errorf("record lens history: %w", err)
	}

	e.logger.Info("lenses assigned",
		zap.String("protagonist", string(res.Protagonist.Archetype)),
		zap.Any("protagonist_lenses", res.Protagonist.Lenses),
		zap.String("love_interest", string(res.LoveInterest.Archetype)),
		zap.Any("love_interest_lenses", res.LoveInterest.Lenses),
		zap.Uint32("selector", res.Selector),
		zap.Bool("relaxed", res.Relaxed))
	return res, nil
}

// assemble builds a candidate assignment. recent is the anti-repetition
// window; nil disables anti-repetition.
func (e *Engine) assemble(in AssignInput, recent []string, historyLen int) *Result {
	pa := Canonicalize(in.ProtagonistArchetype)
	la := Canonicalize(in.LoveInterestArchetype)
	blocked := make(map[string]bool, len(recent))
	for _, combo := range recent {
		blocked[combo] = true
	}

	res := &Result{
		Protagonist:  Character{Archetype: pa, Meta: map[ID]*Meta{}},
		LoveInterest: Character{Archetype: la, Meta: map[ID]*Meta{}},
		Genre:        in.Genre,
		Tone:         in.Tone,
		Selector:     Selector(pa, in.Genre, in.Tone, historyLen),
		HistoryLen:   historyLen,
		AssignedAt:   time.Now().UTC(),
	}

	if ids := in.Overrides[RoleProtagonist]; len(ids) > 0 {
		for _, id := range ids {
			e.attach(&res.Protagonist, id, false)
		}
	} else {
		pick := e.choose(pa, nil, blocked, res.Selector)
		e.attach(&res.Protagonist, pick.id, pick.forced)
	}

	exclude := func(id ID) bool {
		for _, p := range res.Protagonist.Lenses {
			if p == id && !definitions[p].ShareExempt {
				return true
			}
			if Excluded(p, id) {
				return true
			}
		}
		return false
	}

	if ids := in.Overrides[RoleLoveInterest]; len(ids) > 0 {
		for _, id := range ids {
			e.attach(&res.LoveInterest, id, false)
		}
		return res
	}

	sel := loveInterestSelector(la, in.Genre, in.Tone, historyLen)
	pick := e.choose(la, exclude, blocked, sel)
	e.attach(&res.LoveInterest, pick.id, pick.forced)

	if in.Complex && (in.StoryLength == gate.LengthAffair || in.StoryLength == gate.LengthSoulmates) {
		taken := func(id ID) bool { return exclude(id) || res.LoveInterest.Meta[id] != nil }
		natural, _ := pools(la, taken)
		natural, forced := unblocked(la, natural, blocked)
		if len(natural) > 0 && !forced {
			e.attach(&res.LoveInterest, natural[pickIndex(sel+1, len(natural))], false)
		}
	}
	return res
}

// #endregion assign

// #region pools

type choice struct {
	id     ID
	forced bool
	tier   string
}

// choose runs the natural → available → universe fallback.
func (e *Engine) choose(a Archetype, exclude func(ID) bool, blocked map[string]bool, sel uint32) choice {
	natural, available := pools(a, exclude)
	for _, tier := range []struct {
		name string
		pool []ID
	}{{"natural", natural}, {"available", available}} {
		if len(tier.pool) == 0 {
			continue
		}
		pool, forced := unblocked(a, tier.pool, blocked)
		if forced {
			e.logger.Info("forced lens repetition",
				zap.String("archetype", string(a)),
				zap.String("pool", tier.name),
				zap.Float64("penalty", e.cfg.RepetitionPenalty))
		}
		return choice{id: pool[pickIndex(sel, len(pool))], forced: forced, tier: tier.name}
	}

	universe := filterIDs(All(), exclude)
	e.logger.Error("lens pools exhausted, using full universe",
		zap.String("archetype", string(a)),
		zap.Int("universe", len(universe)))
	if len(universe) == 0 {
		return choice{tier: "none"}
	}
	return choice{id: universe[pickIndex(sel, len(universe))], tier: "universe"}
}

// pools returns the NATURAL and NATURAL∪CONDITIONAL candidates for an
// archetype in canonical order, minus anything exclude rejects.
func pools(a Archetype, exclude func(ID) bool) (natural, available []ID) {
	for _, id := range filterIDs(All(), exclude) {
		switch RatingFor(a, id) {
		case Natural:
			natural = append(natural, id)
			available = append(available, id)
		case Conditional:
			available = append(available, id)
		}
	}
	return natural, available
}

// unblocked drops combos in the recent window. If that empties the pool the
// unfiltered pool is kept and forced is true.
func unblocked(a Archetype, pool []ID, blocked map[string]bool) (_ []ID, forced bool) {
	if len(blocked) == 0 {
		return pool, false
	}
	out := filterIDs(pool, func(id ID) bool { return blocked[Combo(a, id)] })
	if len(out) == 0 {
		return pool, len(pool) > 0
	}
	return out, false
}

func filterIDs(ids []ID, drop func(ID) bool) []ID {
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if drop == nil || !drop(id) {
			out = append(out, id)
		}
	}
	return out
}

// #endregion pools

// #region metadata

func (e *Engine) attach(ch *Character, id ID, forced bool) {
	if id == "" || ch.Meta[id] != nil {
		return
	}
	def := definitions[id]
	m := &Meta{Lens: id, Resistance: def.Resistance.Initial}
	if def.Reveal.Required {
		target := e.drawReveal(def.Reveal)
		m.RevealTarget = &target
	}
	if forced {
		m.ForcedRepetition = true
		m.PacingVariation = e.cfg.RepetitionPenalty
	}
	ch.Lenses = append(ch.Lenses, id)
	ch.Meta[id] = m
}

// drawReveal is a genuine uniform draw in [min, max], unrelated to the hash.
func (e *Engine) drawReveal(r RevealSchedule) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.MinProgress + e.rng.Float64()*(r.MaxProgress-r.MinProgress)
}

func combos(res *Result) []string {
	out := make([]string, 0, len(res.Protagonist.Lenses)+len(res.LoveInterest.Lenses))
	for _, id := range res.Protagonist.Lenses {
		out = append(out, Combo(res.Protagonist.Archetype, id))
	}
	for _, id := range res.LoveInterest.Lenses {
		out = append(out, Combo(res.LoveInterest.Archetype, id))
	}
	return out
}

// #endregion metadata

// #region validate

// ValidateAssignment re-checks the hard invariants: both leads carry at
// least one known lens with metadata, no non-exempt lens is shared, and no
// excluded pair is split across them.
func ValidateAssignment(r *Result) error {
	if r == nil {
		return fmt.Errorf("%w: no result", ErrAssignmentInvariant)
	}
	for _, role := range []Role{RoleProtagonist, RoleLoveInterest} {
		ch := r.Character(role)
		if len(ch.Lenses) == 0 {
			return fmt.Errorf("%w: %s has no lens", ErrAssignmentInvariant, role)
		}
		for _, id := range ch.Lenses {
			if _, ok := definitions[id]; !ok {
				return fmt.Errorf("%w: %s carries %w %q", ErrAssignmentInvariant, role, ErrUnknownLens, id)
			}
			if ch.Meta[id] == nil {
				return fmt.Errorf("%w: %s lens %s has no metadata", ErrAssignmentInvariant, role, id)
			}
		}
	}
	for _, p := range r.Protagonist.Lenses {
		for _, l := range r.LoveInterest.Lenses {
			if p == l && !definitions[p].ShareExempt {
				return fmt.Errorf("%w: %s is shared by both leads", ErrAssignmentInvariant, p)
			}
			if Excluded(p, l) {
				return fmt.Errorf("%w: %s on the protagonist excludes %s on the love interest", ErrAssignmentInvariant, p, l)
			}
		}
	}
	return nil
}

// #endregion validate

// #region history-ops

// RecordCombo appends one archetype:lens combo to the history.
func (e *Engine) RecordCombo(ctx context.Context, archetype string, id ID) error {
	return e.history.Record(ctx, Combo(Canonicalize(archetype), id))
}

// GetRecentCombos returns the anti-repetition window, oldest first.
func (e *Engine) GetRecentCombos(ctx context.Context) ([]string, error) {
	return e.history.Recent(ctx, e.cfg.Window)
}

// IsComboBlocked reports whether the combo sits in the recent window.
func (e *Engine) IsComboBlocked(ctx context.Context, archetype string, id ID) (bool, error) {
	recent, err := e.GetRecentCombos(ctx)
	if err != nil {
		return false, err
	}
	want := Combo(Canonicalize(archetype), id)
	for _, combo := range recent {
		if combo == want {
			return true, nil
		}
	}
	return false, nil
}

// #endregion history-ops
