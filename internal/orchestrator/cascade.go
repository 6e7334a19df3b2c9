package orchestrator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/danielpatrickdp/storyweave/internal/codec"
	"github.com/danielpatrickdp/storyweave/internal/signals"
)

// Cascade tunables. Both are tuning values, not derived constants.
const (
	DefaultMinCascadeLength = 40
	DefaultContinuityWords  = 150
)

// DefaultPacingCaps maps pacing modes to the most fast-path beats allowed in a row.
var DefaultPacingCaps = map[string]int{"slow": 2, "standard": 3, "fast": 4}

// #region session

// CascadeState carries an authorized intimate sequence across turns.
type CascadeState struct {
	Active    bool            `json:"active"`
	SD        *SceneDirective `json:"sd,omitempty"`
	Excerpt   string          `json:"excerpt,omitempty"`
	BeatCount int             `json:"beat_count"`
	Renderer  codec.Role      `json:"renderer,omitempty"`
}

// Session is the per-story state a controller reads and writes between
// turns. It is not safe for concurrent turns on the same story.
type Session struct {
	Cascade CascadeState
	Tracker *signals.Tracker
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{Tracker: signals.NewTracker()}
}

// #endregion

// #region eligibility

// fastPathBlocker names why the fast path cannot run, or "" if it can.
func fastPathBlocker(c CascadeState, req TurnRequest, limit int) string {
	switch {
	case !c.Active || c.SD == nil:
		return "inactive"
	case req.Trigger != nil && strings.TrimSpace(*req.Trigger) != "":
		return "trigger"
	case req.PendingPetition:
		return "petition"
	case req.ExplicitInvocation:
		return "invocation"
	case c.BeatCount >= limit:
		return "cap"
	}
	return ""
}

// #endregion

// #region scrub

var (
	bracketTag = regexp.MustCompile(`\[[^\[\]\n]{1,40}\]`)
	angleTag   = regexp.MustCompile(`</?[A-Za-z][^<>\n]{0,40}>`)
	// Directive labels only count as leakage when used as a label.
	frameLabel = regexp.MustCompile(`(?i)\b(?:scene directives?|hard stops?|intimacy stages?|completion allowed|emotional core|physical bounds|sensory focus|lens(?:es)?|sd)[ \t]*:`)
	frameField = regexp.MustCompile(`(?i)\b(?:scene_directives?|hard_stops?|intimacy_stages?|completion_allowed|emotional_core|physical_bounds|sensory_focus|gate_check|author_pass|sd_author|render_pass|integration_pass)\b:?`)
	frameSD    = regexp.MustCompile(`\bSD\b`)
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	lineEdges  = regexp.MustCompile(` *\n *`)
	blankRun   = regexp.MustCompile(`\n{3,}`)
)

// scrub strips framework leakage and tags, then collapses whitespace while
// keeping paragraph breaks.
func scrub(s string) string {
	s = bracketTag.ReplaceAllString(s, " ")
	s = angleTag.ReplaceAllString(s, " ")
	s = frameLabel.ReplaceAllString(s, " ")
	s = frameField.ReplaceAllString(s, " ")
	s = frameSD.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	s = lineEdges.ReplaceAllString(s, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func tooShort(s string, minLen int) bool {
	return utf8.RuneCountInString(s) < minLen
}

// tailWords returns the last n words of s.
func tailWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

// #endregion
