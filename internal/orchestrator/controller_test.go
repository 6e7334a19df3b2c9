package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/storyweave/internal/codec"
	"github.com/danielpatrickdp/storyweave/internal/gate"
	"github.com/danielpatrickdp/storyweave/internal/signals"
)

func TestPlainTurn(t *testing.T) {
	r := newRig(time.Second)
	r.primary.Push(codec.Reply(authorJSON("She opens the letter.", false)), codec.Reply("She opens the letter, and the floor drops away."))

	var seen []Phase
	res, err := r.controller(Options{}).RunTurn(context.Background(), NewSession(), TurnRequest{
		AccessTier:   "free",
		PlayerAction: "open the letter",
		OnPhase:      func(p Phase) { seen = append(seen, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, "She opens the letter, and the floor drops away.", res.FinalOutput)
	assert.Equal(t, []Phase{PhaseGateCheck, PhaseAuthorPass, PhaseIntegrationPass, PhaseComplete}, seen)
	assert.Equal(t, []Phase{PhaseInit, PhaseGateCheck, PhaseAuthorPass, PhaseIntegrationPass, PhaseComplete}, res.State.Visited)
	assert.Equal(t, "GATE_TASTE", res.Gate.GateCode)
	assert.False(t, res.RendererUsed)
	assert.Empty(t, res.Errors)
	assert.NotEmpty(t, res.TurnID)
	assert.Zero(t, r.renderer.Calls())

	reqs := r.primary.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, reqs[0].JSON, "author pass asks for structured output")
	assert.Contains(t, systemOf(reqs[0]), "cliffhanger")
	assert.Contains(t, lastUser(reqs[0]), "open the letter")
	assert.False(t, reqs[1].JSON)
}

func TestFallbackAuthorOnTimeout(t *testing.T) {
	r := newRig(time.Second)
	r.primary.Push(codec.Failure(codec.KindTimeout), codec.Reply("Integrated beat."))
	r.fallback.Push(codec.Reply(authorJSON("The door creaks.", false)))

	res, err := r.controller(Options{}).RunTurn(context.Background(), NewSession(), TurnRequest{AccessTier: "sub"})
	require.NoError(t, err)

	assert.True(t, res.UsedFallbackAuthor)
	assert.True(t, res.State.Reached(PhaseIntegrationPass))
	assert.Equal(t, PhaseComplete, res.State.Phase)
	assert.Equal(t, "Integrated beat.", res.FinalOutput)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, PhaseAuthorPass, res.Errors[0].Phase)
	assert.Equal(t, string(codec.KindTimeout), res.Errors[0].Kind)

	fb := r.fallback.Requests()
	require.Len(t, fb, 1)
	assert.InDelta(t, 0.6, fb[0].Temperature, 1e-9)
	assert.Equal(t, 900, fb[0].MaxTokens)
}

func TestFallbackAuthorOnDeadline(t *testing.T) {
	r := newRig(30 * time.Millisecond)
	r.primary.Push(codec.Step{Text: "too late", Delay: time.Second}, codec.Reply("Integrated beat."))
	r.fallback.Push(codec.Reply("A plain prose beat with no envelope."))

	res, err := r.controller(Options{}).RunTurn(context.Background(), NewSession(), TurnRequest{AccessTier: "pass"})
	require.NoError(t, err)
	assert.True(t, res.UsedFallbackAuthor)
	assert.Equal(t, "A plain prose beat with no envelope.", res.State.Author.Narrative)
	assert.False(t, res.State.Author.AuthorizeEmbodied)
	assert.Equal(t, string(codec.KindTimeout), res.Errors[0].Kind)
}

func TestMalformedAuthorEnvelopeFallsBack(t *testing.T) {
	r := newRig(time.Second)
	r.primary.Push(codec.Reply(`{"authorize_embodied":true}`), codec.Reply("Integrated beat."))
	r.fallback.Push(codec.Reply(authorJSON("Steady now.", false)))

	res, err := r.controller(Options{}).RunTurn(context.Background(), NewSession(), TurnRequest{})
	require.NoError(t, err)
	assert.True(t, res.UsedFallbackAuthor)
	assert.Equal(t, string(codec.KindMalformed), res.Errors[0].Kind)
}

func TestBothAuthorsFailAborts(t *testing.T) {
	r := newRig(time.Second)
	r.primary.Push(codec.Step{Fail: codec.KindHTTP, Status: 502})
	r.fallback.Push(codec.Failure(codec.KindMalformed))

	sess := NewSession()
	sess.Cascade = CascadeState{Active: true, SD: &SceneDirective{}, Excerpt: "before", BeatCount: 1}
	before := sess.Cascade

	res, err := r.controller(Options{}).RunTurn(context.Background(), sess, TurnRequest{Trigger: strPtr("a stranger arrives")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTurnAborted)
	assert.ErrorIs(t, err, codec.ErrMalformed)

	assert.Equal(t, before, sess.Cascade, "aborted turn must not touch the session")
	assert.Zero(t, sess.Tracker.TotalTurns())
	assert.False(t, res.UsedFallbackAuthor)
	assert.Equal(t, PhaseAuthorPass, res.State.Phase)
	assert.Len(t, res.Errors, 2)
	assert.Empty(t, res.FinalOutput)
	assert.Zero(t, r.renderer.Calls())
}

func TestBothRenderersFailOnDirective(t *testing.T) {
	r := newRig(time.Second)
	r.primary.Push(codec.Reply(authorJSON("They step closer.", true)), codec.Reply("A knock at the door breaks the moment."))
	r.renderer.Push(codec.Step{Fail: codec.KindHTTP, Status: 500})
	r.fallbackRenderer.Push(codec.Step{Fail: codec.KindHTTP, Status: 503})

	res, err := r.controller(Options{}).RunTurn(context.Background(), NewSession(), TurnRequest{AccessTier: "premium"})
	require.NoError(t, err)

	assert.True(t, res.FateStumbled)
	assert.True(t, res.ForcedInterruption)
	assert.False(t, res.RendererUsed)
	assert.False(t, res.State.Reached(PhaseRenderPass))
	assert.NotEmpty(t, res.FinalOutput)
	assert.Equal(t, 1, r.renderer.Calls())
	assert.Equal(t, 1, r.fallbackRenderer.Calls())

	integ := r.primary.Requests()[1]
	assert.Contains(t, lastUser(integ), interruptionInstruction)
}

func TestRenderFailureInterrupts(t *testing.T) {
	r := newRig(time.Second)
	r.primary.Push(codec.Reply(authorJSON("They step closer.", true)), codec.Reply("The phone rings."))
	r.renderer.Push(codec.Reply(sdValid), codec.Step{Fail: codec.KindHTTP, Status: 500})
	r.fallbackRenderer.Push(codec.Step{Fail: codec.KindHTTP, Status: 500})

	sess := NewSession()
	res, err := r.controller(Options{}).RunTurn(context.Background(), sess, TurnRequest{AccessTier: "sub"})
	require.NoError(t, err)

	assert.True(t, res.State.SDAuthoredByPrimaryRenderer)
	assert.True(t, res.State.RendererFailed)
	assert.True(t, res.ForcedInterruption)
	assert.False(t, res.FateStumbled)
	assert.Equal(t, "The phone rings.", res.FinalOutput)
	assert.False(t, sess.Cascade.Active, "no render, no cascade")
}

func TestFallbackRendererAuthorsAndRenders(t *testing.T) {
	r := newRig(time.Second)
	r.primary.Push(codec.Reply(authorJSON("They step closer.", true)), codec.Reply("Woven."))
	r.renderer.Push(codec.Reply("not json at all"))
	r.fallbackRenderer.Push(codec.Reply(sdValid), codec.Reply(prose))

	sess := NewSession()
	res, err := r.controller(Options{}).RunTurn(context.Background(), sess, TurnRequest{AccessTier: "premium"})
	require.NoError(t, err)

	assert.True(t, res.State.SDAuthoredByFallbackRenderer)
	assert.Equal(t, codec.RoleFallbackRenderer, res.Renderer)
	assert.Equal(t, 1, r.renderer.Calls(), "primary renderer is not retried for the render")
	assert.Equal(t, KindSDValidation, res.Errors[0].Kind)
	assert.True(t, sess.Cascade.Active)
	assert.Equal(t, codec.RoleFallbackRenderer, sess.Cascade.Renderer)
}

func TestGateForcesNoCompletion(t *testing.T) {
	r := newRig(time.Second)
	r.primary.Push(codec.Reply(authorJSON("They step closer.", true)), codec.Reply("Woven."))
	r.renderer.Push(codec.Reply(sdNoStop), codec.Reply(prose))

	res, err := r.controller(Options{}).RunTurn(context.Background(), NewSession(), TurnRequest{AccessTier: "free"})
	require.NoError(t, err)

	sd := res.State.SD
	require.NotNil(t, sd)
	require.NotNil(t, sd.CompletionAllowed)
	assert.False(t, *sd.CompletionAllowed)
	assert.Contains(t, sd.HardStops, HardStopNoCompletion)
	assert.Zero(t, r.fallbackRenderer.Calls())
}

func TestDirectiveWithoutStopsRejectedWhenCompletionAllowed(t *testing.T) {
	r := newRig(time.Second)
	r.primary.Push(codec.Reply(authorJSON("They step closer.", true)), codec.Reply("Woven."))
	r.renderer.Push(codec.Reply(sdNoStop))
	r.fallbackRenderer.Push(codec.Reply(sdNoStop))

	res, err := r.controller(Options{}).RunTurn(context.Background(), NewSession(), TurnRequest{AccessTier: "premium"})
	require.NoError(t, err)
	assert.True(t, res.FateStumbled)
	assert.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		assert.Equal(t, KindSDValidation, e.Kind)
	}
}

func TestIntegrationDegrades(t *testing.T) {
	t.Run("to renderer output", func(t *testing.T) {
		r := newRig(time.Second)
		r.primary.Push(codec.Reply(authorJSON("They step closer.", true)), codec.Failure(codec.KindTimeout))
		r.fallback.Push(codec.Failure(codec.KindTimeout))
		r.renderer.Push(codec.Reply(sdValid), codec.Reply(prose))

		res, err := r.controller(Options{}).RunTurn(context.Background(), NewSession(), TurnRequest{AccessTier: "sub"})
		require.NoError(t, err)
		assert.Equal(t, prose, res.FinalOutput)
		assert.Equal(t, KindDegraded, res.Errors[len(res.Errors)-1].Kind)
	})

	t.Run("to author narrative", func(t *testing.T) {
		r := newRig(time.Second)
		r.primary.Push(codec.Reply(authorJSON("The lamp gutters.", false)), codec.Failure(codec.KindHTTP))
		r.fallback.Push(codec.Failure(codec.KindHTTP))

		res, err := r.controller(Options{}).RunTurn(context.Background(), NewSession(), TurnRequest{})
		require.NoError(t, err)
		assert.Equal(t, "The lamp gutters.", res.FinalOutput)
		assert.False(t, res.UsedFallbackAuthor, "integration fallback is not the author fallback")
	})

	t.Run("fallback integration", func(t *testing.T) {
		r := newRig(time.Second)
		r.primary.Push(codec.Reply(authorJSON("The lamp gutters.", false)), codec.Failure(codec.KindHTTP))
		r.fallback.Push(codec.Reply("Rescued by the fallback."))

		res, err := r.controller(Options{}).RunTurn(context.Background(), NewSession(), TurnRequest{})
		require.NoError(t, err)
		assert.Equal(t, "Rescued by the fallback.", res.FinalOutput)
		assert.True(t, res.State.IntegrationUsedFallback)
	})
}

func TestCanceledTurn(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		r := newRig(time.Second)
		r.primary.Push(codec.Reply(authorJSON("x", false)))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sess := NewSession()
		_, err := r.controller(Options{}).RunTurn(ctx, sess, TurnRequest{})
		assert.ErrorIs(t, err, ErrCanceled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, r.fallback.Calls(), "cancellation never falls back")
		assert.Zero(t, sess.Tracker.TotalTurns())
	})

	t.Run("mid call", func(t *testing.T) {
		r := newRig(5 * time.Second)
		r.primary.Push(codec.Reply(authorJSON("They step closer.", true)))
		r.renderer.Push(codec.Step{Text: sdValid, Delay: 5 * time.Second})

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(30 * time.Millisecond)
			cancel()
		}()

		sess := NewSession()
		res, err := r.controller(Options{}).RunTurn(ctx, sess, TurnRequest{AccessTier: "sub"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCanceled))
		assert.Equal(t, PhaseSDAuthor, res.State.Phase)
		assert.Zero(t, r.fallbackRenderer.Calls())
		assert.False(t, sess.Cascade.Active)
	})
}

func TestBiasAndLensDirectivesReachAuthor(t *testing.T) {
	r := newRig(time.Second)
	r.primary.Push(codec.Reply(authorJSON("x", false)), codec.Reply("y"))

	_, err := r.controller(Options{}).RunTurn(context.Background(), NewSession(), TurnRequest{
		SystemPrompt:   "Custom narrator.",
		BiasBlock:      "Reader bias: Favors slow burns.",
		LensDirectives: "- protagonist (cloaked): the secret that cannot be spoken.",
	})
	require.NoError(t, err)

	sys := systemOf(r.primary.Requests()[0])
	assert.True(t, strings.HasPrefix(sys, "Custom narrator."))
	assert.Contains(t, sys, "Reader bias: Favors slow burns.")
	assert.Contains(t, sys, "the secret that cannot be spoken")
}

func TestUnknownTierIsMostRestrictive(t *testing.T) {
	r := newRig(time.Second)
	r.primary.Push(codec.Reply(authorJSON("x", false)), codec.Reply("y"))

	res, err := r.controller(Options{}).RunTurn(context.Background(), nil, TurnRequest{AccessTier: "platinum"})
	require.NoError(t, err)
	assert.Equal(t, gate.EnforceGates("free"), res.Gate)
}

func TestAdvanceOrder(t *testing.T) {
	st := newState("t")
	require.NoError(t, st.advance(PhaseGateCheck))
	require.NoError(t, st.advance(PhaseIntegrationPass), "skipping forward is allowed")
	assert.ErrorIs(t, st.advance(PhaseAuthorPass), ErrPhaseOrder)
	assert.ErrorIs(t, st.advance(PhaseIntegrationPass), ErrPhaseOrder)
	assert.ErrorIs(t, st.advance(PhaseCascade), ErrPhaseOrder)
	require.NoError(t, st.advance(PhaseComplete))
}

func TestInterruptionsFeedTracker(t *testing.T) {
	r := newRig(time.Second)
	c := r.controller(Options{})
	sess := NewSession()
	for i := 0; i < 2; i++ {
		r.primary.Push(codec.Reply(authorJSON("They step closer.", true)), codec.Reply("The phone rings."))
		r.renderer.Push(codec.Reply(sdValid), codec.Failure(codec.KindTimeout))
		r.fallbackRenderer.Push(codec.Failure(codec.KindTimeout))

		res, err := c.RunTurn(context.Background(), sess, TurnRequest{AccessTier: "sub"})
		require.NoError(t, err)
		require.True(t, res.ForcedInterruption)
	}

	assert.Equal(t, 2, sess.Tracker.TotalTurns())
	assert.Equal(t, signals.No, sess.Tracker.InferPreferences().DislikesInterruption)

	require.NoError(t, sess.Tracker.RecordSignal(signals.SignalAbandonment, signals.SignalData{}))
	assert.Equal(t, signals.Yes, sess.Tracker.InferPreferences().DislikesInterruption)
	assert.Contains(t, sess.Tracker.BuildBiasBlock(), "abrupt interruptions")

	// The bias now reaches the next author prompt.
	r.primary.Push(codec.Reply(authorJSON("Quiet.", false)), codec.Reply("Quiet."))
	_, err := c.RunTurn(context.Background(), sess, TurnRequest{AccessTier: "sub"})
	require.NoError(t, err)
	reqs := r.primary.Requests()
	assert.Contains(t, systemOf(reqs[len(reqs)-2]), "abrupt interruptions")
}
