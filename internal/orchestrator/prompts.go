package orchestrator

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/storyweave/internal/codec"
	"github.com/danielpatrickdp/storyweave/internal/gate"
)

// #region prompt-constants

// DefaultSystemPrompt is used when the request carries none.
const DefaultSystemPrompt = `You are the narrator of a serialized interactive romance. You write in close third person, present tense, in the voice already established by the story. You never speak for the reader's character and never break the fourth wall.`

const authorEnvelope = `Respond with ONLY a JSON object:
{"narrative": string, "authorize_embodied": boolean, "intimacy_stage": string}
- narrative: the next beat of the story, 2 to 5 paragraphs.
- authorize_embodied: true only if this beat naturally moves into an embodied intimate moment.
- intimacy_stage: one of "none", "charged", "touch", "embrace", "embodied".`

const sdSystemPrompt = `You plan embodied scenes for a specialist writer. Read the beat and write a scene plan as ONLY a JSON object:
{"intimacy_stage": string, "completion_allowed": boolean, "emotional_core": string, "physical_bounds": string, "sensory_focus": string, "rhythm": string, "hard_stops": [string]}
hard_stops must never be empty. Respect every constraint you are given.`

const renderSystemPrompt = `You write embodied, sensory prose for a single scene. Follow the scene plan exactly. Never cross a listed limit. Write prose only: no headings, no labels, no notes.`

const cascadeRules = `This continues a scene already in progress.
- Keep the same point of view and the same characters.
- Do not introduce any new theme, plot thread or character.
- Pick up exactly where the excerpt ends.`

const integrationRules = `You receive the beat as planned and, possibly, a specialist passage. Weave them into one continuous passage in the story's voice. Output prose only.`

const interruptionInstruction = `The embodied moment does not happen. Interrupt it with a believable in-world event and carry the story forward from there without mentioning that anything was skipped.`

// #endregion

// #region builders

func turnBlock(req TurnRequest) string {
	var b strings.Builder
	if s := strings.TrimSpace(req.StoryContext); s != "" {
		fmt.Fprintf(&b, "Story so far:\n%s\n\n", s)
	}
	if s := strings.TrimSpace(req.PlayerAction); s != "" {
		fmt.Fprintf(&b, "Reader action: %s\n", s)
	}
	if s := strings.TrimSpace(req.PlayerDialogue); s != "" {
		fmt.Fprintf(&b, "Reader says: %q\n", s)
	}
	if req.Trigger != nil && strings.TrimSpace(*req.Trigger) != "" {
		fmt.Fprintf(&b, "STORY EVENT: %s\n", strings.TrimSpace(*req.Trigger))
	}
	return strings.TrimSpace(b.String())
}

func systemBlock(req TurnRequest, g gate.GateRecord, bias string) string {
	sys := strings.TrimSpace(req.SystemPrompt)
	if sys == "" {
		sys = DefaultSystemPrompt
	}
	parts := []string{sys, g.Directive()}
	if s := strings.TrimSpace(req.LensDirectives); s != "" {
		parts = append(parts, "Character pressures:\n"+s)
	}
	if s := strings.TrimSpace(bias); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

func authorMessages(req TurnRequest, g gate.GateRecord, bias string) []codec.Message {
	return []codec.Message{
		codec.System(systemBlock(req, g, bias) + "\n\n" + authorEnvelope),
		codec.User(turnBlock(req)),
	}
}

func sdMessages(g gate.GateRecord, author *AuthorOutput) []codec.Message {
	var b strings.Builder
	b.WriteString(g.Directive())
	if !g.CompletionAllowed {
		fmt.Fprintf(&b, "\ncompletion_allowed must be false and hard_stops must include %q.", HardStopNoCompletion)
	}
	fmt.Fprintf(&b, "\n\nStage requested: %s\n\nBeat:\n%s", author.IntimacyStage, author.Narrative)
	return []codec.Message{codec.System(sdSystemPrompt), codec.User(b.String())}
}

func renderMessages(sd *SceneDirective, author *AuthorOutput) []codec.Message {
	return []codec.Message{
		codec.System(renderSystemPrompt),
		codec.User("Scene plan:\n" + sd.block() + "\n\nLead-in:\n" + author.Narrative),
	}
}

func cascadeMessages(sd *SceneDirective, excerpt string, req TurnRequest) []codec.Message {
	user := "Scene plan:\n" + sd.block() + "\n\nContinue from:\n" + excerpt
	if s := strings.TrimSpace(req.PlayerAction); s != "" {
		user += "\n\nReader action: " + s
	}
	if s := strings.TrimSpace(req.PlayerDialogue); s != "" {
		user += fmt.Sprintf("\nReader says: %q", s)
	}
	return []codec.Message{
		codec.System(renderSystemPrompt + "\n\n" + cascadeRules),
		codec.User(user),
	}
}

func integrationMessages(req TurnRequest, g gate.GateRecord, bias string, st *State) []codec.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Planned beat:\n%s\n\n", st.Author.Narrative)
	switch {
	case st.RendererOutput != "":
		fmt.Fprintf(&b, "Specialist passage:\n%s\n", st.RendererOutput)
	case st.ForcedInterruption:
		b.WriteString(interruptionInstruction + "\n")
	}
	if t := turnBlock(req); t != "" {
		fmt.Fprintf(&b, "\n%s", t)
	}
	return []codec.Message{
		codec.System(systemBlock(req, g, bias) + "\n\n" + integrationRules),
		codec.User(strings.TrimSpace(b.String())),
	}
}

// #endregion
