package orchestrator

// #region imports
import (
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/storyweave/internal/codec"
	"github.com/danielpatrickdp/storyweave/internal/gate"
)

// #endregion

// #region phase

// Phase is one step of the per-turn state machine.
type Phase string

const (
	PhaseInit            Phase = "INIT"
	PhaseGateCheck       Phase = "GATE_CHECK"
	PhaseAuthorPass      Phase = "AUTHOR_PASS"
	PhaseSDAuthor        Phase = "SD_AUTHOR"
	PhaseRenderPass      Phase = "RENDER_PASS"
	PhaseIntegrationPass Phase = "INTEGRATION_PASS"
	PhaseComplete        Phase = "COMPLETE"

	// PhaseCascade labels timing and errors of a fast-path attempt. It is
	// never the current phase.
	PhaseCascade Phase = "CASCADE"
)

var phaseOrder = map[Phase]int{
	PhaseInit:            0,
	PhaseGateCheck:       1,
	PhaseAuthorPass:      2,
	PhaseSDAuthor:        3,
	PhaseRenderPass:      4,
	PhaseIntegrationPass: 5,
	PhaseComplete:        6,
}

// #endregion

// #region errors

var (
	// ErrPhaseOrder is a programming error: a transition moved backwards or
	// named an unknown phase.
	ErrPhaseOrder = errors.New("phase transition out of order")
	// ErrTurnAborted means both authors failed. Nothing was mutated.
	ErrTurnAborted = errors.New("turn aborted")
	// ErrCanceled means the turn context ended mid-turn. Nothing was mutated.
	ErrCanceled = errors.New("turn canceled")
	// ErrSDValidation marks a scene directive missing required fields.
	ErrSDValidation = errors.New("scene directive failed validation")
)

// Error kinds recorded beside the codec kinds.
const (
	KindSDValidation = "sd_validation"
	KindDegraded     = "degraded"
	KindCascade      = "cascade_malformed"
	KindSink         = "trace_sink"
)

// ErrorRecord is one entry of the append-only turn error list.
type ErrorRecord struct {
	Phase   Phase     `json:"phase"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// #endregion

// #region author-output

// AuthorOutput is the parsed result of the author pass.
type AuthorOutput struct {
	Narrative         string `json:"narrative"`
	AuthorizeEmbodied bool   `json:"authorize_embodied"`
	IntimacyStage     string `json:"intimacy_stage,omitempty"`
	Raw               string `json:"-"`
}

// #endregion

// #region state

// State is the ephemeral record of one turn.
type State struct {
	TurnID  string  `json:"turn_id"`
	Phase   Phase   `json:"phase"`
	Visited []Phase `json:"visited"`

	Author            *AuthorOutput   `json:"author,omitempty"`
	SD                *SceneDirective `json:"sd,omitempty"`
	RendererOutput    string          `json:"renderer_output,omitempty"`
	IntegrationOutput string          `json:"integration_output,omitempty"`

	RendererFailed               bool `json:"renderer_failed"`
	FateStumbled                 bool `json:"fate_stumbled"`
	ForcedInterruption           bool `json:"forced_interruption"`
	UsedFallbackAuthor           bool `json:"used_fallback_author"`
	IntegrationUsedFallback      bool `json:"integration_used_fallback"`
	SDAuthoredByPrimaryRenderer  bool `json:"sd_authored_by_primary_renderer"`
	SDAuthoredByFallbackRenderer bool `json:"sd_authored_by_fallback_renderer"`

	CascadeUsed      bool       `json:"cascade_used"`
	CascadeBeat      int        `json:"cascade_beat"`
	CascadeCap       int        `json:"cascade_cap"`
	CascadeEndReason string     `json:"cascade_end_reason,omitempty"`
	Renderer         codec.Role `json:"renderer,omitempty"`

	Errors []ErrorRecord           `json:"errors"`
	Timing map[Phase]time.Duration `json:"timing"`
}

func newState(turnID string) *State {
	return &State{
		TurnID:  turnID,
		Phase:   PhaseInit,
		Visited: []Phase{PhaseInit},
		Timing:  map[Phase]time.Duration{},
	}
}

// advance moves to next. Phases may be skipped but never revisited.
func (s *State) advance(next Phase) error {
	to, ok := phaseOrder[next]
	if !ok {
		return fmt.Errorf("%w: unknown phase %q", ErrPhaseOrder, next)
	}
	if to <= phaseOrder[s.Phase] {
		return fmt.Errorf("%w: %s -> %s", ErrPhaseOrder, s.Phase, next)
	}
	s.Phase = next
	s.Visited = append(s.Visited, next)
	return nil
}

func (s *State) recordError(phase Phase, kind, msg string) {
	s.Errors = append(s.Errors, ErrorRecord{Phase: phase, Kind: kind, Message: msg, At: time.Now().UTC()})
}

func (s *State) recordCallError(phase Phase, err error) {
	kind := string(codec.KindOf(err))
	if errors.Is(err, ErrSDValidation) {
		kind = KindSDValidation
	}
	if kind == "" {
		kind = "unknown"
	}
	s.recordError(phase, kind, err.Error())
}

// Reached reports whether the turn passed through p.
func (s *State) Reached(p Phase) bool {
	for _, v := range s.Visited {
		if v == p {
			return true
		}
	}
	return false
}

// #endregion

// #region turn-boundary

// TurnRequest is everything the caller supplies for one turn.
type TurnRequest struct {
	AccessTier         string
	StoryContext       string
	PlayerAction       string
	PlayerDialogue     string
	Trigger            *string // selected narrative trigger, nil when none
	PendingPetition    bool
	ExplicitInvocation bool
	SystemPrompt       string
	PacingMode         string // slow | standard | fast
	CascadeCap         int    // overrides the pacing-mode cap when > 0
	BiasBlock          string // empty uses the session tracker's block
	LensDirectives     string
	OnPhase            func(Phase)
}

// TurnResult is what the turn hands back.
type TurnResult struct {
	TurnID             string
	FinalOutput        string
	State              *State
	Gate               gate.GateRecord
	RendererUsed       bool
	Renderer           codec.Role
	FateStumbled       bool
	ForcedInterruption bool
	UsedFallbackAuthor bool
	Errors             []ErrorRecord
	Timing             map[Phase]time.Duration
}

// #endregion
