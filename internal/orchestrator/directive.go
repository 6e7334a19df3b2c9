package orchestrator

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/danielpatrickdp/storyweave/internal/codec"
	"github.com/danielpatrickdp/storyweave/internal/gate"
)

// HardStopNoCompletion is added to every directive when the gate forbids completion.
const HardStopNoCompletion = "no narrative completion"

// #region scene-directive

// SceneDirective authorizes and bounds one embodied rendering pass.
type SceneDirective struct {
	IntimacyStage     string   `json:"intimacy_stage"`
	CompletionAllowed *bool    `json:"completion_allowed"`
	EmotionalCore     string   `json:"emotional_core"`
	PhysicalBounds    string   `json:"physical_bounds"`
	SensoryFocus      string   `json:"sensory_focus"`
	Rhythm            string   `json:"rhythm"`
	HardStops         []string `json:"hard_stops"`
}

// Validate rejects a directive without completion_allowed or without at
// least one non-blank hard stop.
func (d *SceneDirective) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: missing directive", ErrSDValidation)
	}
	if d.CompletionAllowed == nil {
		return fmt.Errorf("%w: completion_allowed absent", ErrSDValidation)
	}
	for _, s := range d.HardStops {
		if strings.TrimSpace(s) != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: no hard stops", ErrSDValidation)
}

// applyGate narrows the directive to what the tier permits.
func (d *SceneDirective) applyGate(g gate.GateRecord) {
	if g.CompletionAllowed {
		return
	}
	no := false
	d.CompletionAllowed = &no
	for _, s := range d.HardStops {
		if strings.EqualFold(strings.TrimSpace(s), HardStopNoCompletion) {
			return
		}
	}
	d.HardStops = append(d.HardStops, HardStopNoCompletion)
}

// clone returns a deep copy so gate narrowing never touches the original.
func (d *SceneDirective) clone() *SceneDirective {
	if d == nil {
		return nil
	}
	c := *d
	if d.CompletionAllowed != nil {
		v := *d.CompletionAllowed
		c.CompletionAllowed = &v
	}
	c.HardStops = append([]string(nil), d.HardStops...)
	return &c
}

// block renders the directive for the renderer prompt.
func (d *SceneDirective) block() string {
	completion := "no"
	if d.CompletionAllowed != nil && *d.CompletionAllowed {
		completion = "yes"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Stage: %s\n", d.IntimacyStage)
	fmt.Fprintf(&b, "Completion allowed: %s\n", completion)
	fmt.Fprintf(&b, "Emotional core: %s\n", d.EmotionalCore)
	fmt.Fprintf(&b, "Physical bounds: %s\n", d.PhysicalBounds)
	fmt.Fprintf(&b, "Sensory focus: %s\n", d.SensoryFocus)
	fmt.Fprintf(&b, "Rhythm: %s\n", d.Rhythm)
	b.WriteString("Never cross:\n")
	for _, s := range d.HardStops {
		if s = strings.TrimSpace(s); s != "" {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// #endregion

// #region parsing

// parseSceneDirective reads renderer JSON. The directive is not validated here.
func parseSceneDirective(text string) (*SceneDirective, error) {
	raw := stripFence(text)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: not JSON", ErrSDValidation)
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: not a JSON object", ErrSDValidation)
	}

	d := &SceneDirective{
		IntimacyStage:  doc.Get("intimacy_stage").String(),
		EmotionalCore:  doc.Get("emotional_core").String(),
		PhysicalBounds: doc.Get("physical_bounds").String(),
		SensoryFocus:   doc.Get("sensory_focus").String(),
		Rhythm:         doc.Get("rhythm").String(),
	}
	if ca := doc.Get("completion_allowed"); ca.Type == gjson.True || ca.Type == gjson.False {
		v := ca.Bool()
		d.CompletionAllowed = &v
	}
	stops := doc.Get("hard_stops")
	switch {
	case stops.IsArray():
		for _, s := range stops.Array() {
			d.HardStops = append(d.HardStops, s.String())
		}
	case stops.Type == gjson.String:
		d.HardStops = []string{stops.String()}
	}
	return d, nil
}

// parseAuthorOutput reads the author's JSON envelope. Plain prose is
// accepted as narrative with no authorization; an envelope without a
// narrative is malformed.
func parseAuthorOutput(role codec.Role, text string) (AuthorOutput, error) {
	out := AuthorOutput{Raw: text}
	raw := stripFence(text)
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		out.Narrative = strings.TrimSpace(text)
		return out, nil
	}

	doc := gjson.Parse(raw)
	out.Narrative = strings.TrimSpace(doc.Get("narrative").String())
	out.AuthorizeEmbodied = doc.Get("authorize_embodied").Bool()
	out.IntimacyStage = doc.Get("intimacy_stage").String()
	if out.Narrative == "" {
		return AuthorOutput{}, &codec.CallError{Kind: codec.KindMalformed, Role: role, Body: "author envelope has no narrative"}
	}
	return out, nil
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(s[:nl]), "{") {
		s = s[nl+1:] // drop the language tag line
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// #endregion
