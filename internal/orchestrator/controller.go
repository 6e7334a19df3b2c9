package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/storyweave/internal/codec"
	"github.com/danielpatrickdp/storyweave/internal/gate"
	"github.com/danielpatrickdp/storyweave/internal/signals"
)

// #endregion

const tracerName = "github.com/danielpatrickdp/storyweave/internal/orchestrator"

// #region call-params

// Sampling per pass. The fallback author runs conservatively.
var (
	primaryAuthorParams  = callParams{temperature: 0.9, maxTokens: 1600, json: true}
	fallbackAuthorParams = callParams{temperature: 0.6, maxTokens: 900, json: true}
	directiveParams      = callParams{temperature: 0.4, maxTokens: 600, json: true}
	renderParams         = callParams{temperature: 0.85, maxTokens: 1200}
	cascadeParams        = callParams{temperature: 0.85, maxTokens: 900}
	integrationParams    = callParams{temperature: 0.7, maxTokens: 1400}
	fallbackIntegrParams = callParams{temperature: 0.6, maxTokens: 900}
)

type callParams struct {
	temperature float64
	maxTokens   int
	json        bool
}

func (p callParams) with(msgs []codec.Message) codec.CallOptions {
	return codec.CallOptions{Messages: msgs, Temperature: p.temperature, MaxTokens: p.maxTokens, JSON: p.json}
}

// #endregion

// #region controller

// Invoker is the generation surface the controller needs. *codec.Layer
// satisfies it.
type Invoker interface {
	Call(ctx context.Context, role codec.Role, opts codec.CallOptions) (string, error)
}

// Options tunes a Controller. Zero values select defaults.
type Options struct {
	PacingCaps       map[string]int
	MinCascadeLength int
	ContinuityWords  int
	Sink             TraceSink
	Logger           *zap.Logger
	Tracer           trace.Tracer
}

// Controller runs turns. It holds no per-story state, so one instance
// serves every session concurrently.
type Controller struct {
	inv              Invoker
	pacingCaps       map[string]int
	minCascadeLength int
	continuityWords  int
	sink             TraceSink
	logger           *zap.Logger
	tracer           trace.Tracer
}

// NewController wires a controller over inv.
func NewController(inv Invoker, opts Options) *Controller {
	c := &Controller{
		inv:              inv,
		pacingCaps:       opts.PacingCaps,
		minCascadeLength: opts.MinCascadeLength,
		continuityWords:  opts.ContinuityWords,
		sink:             opts.Sink,
		logger:           opts.Logger,
		tracer:           opts.Tracer,
	}
	if len(c.pacingCaps) == 0 {
		c.pacingCaps = DefaultPacingCaps
	}
	if c.minCascadeLength <= 0 {
		c.minCascadeLength = DefaultMinCascadeLength
	}
	if c.continuityWords <= 0 {
		c.continuityWords = DefaultContinuityWords
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("orch")
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// CascadeCap resolves the fast-path cap for a request: an explicit cap
// wins, then the pacing mode, then standard.
func (c *Controller) CascadeCap(req TurnRequest) int {
	if req.CascadeCap > 0 {
		return req.CascadeCap
	}
	if n, ok := c.pacingCaps[strings.ToLower(strings.TrimSpace(req.PacingMode))]; ok && n > 0 {
		return n
	}
	if n := c.pacingCaps["standard"]; n > 0 {
		return n
	}
	return DefaultPacingCaps["standard"]
}

// #endregion

// #region run-turn

// RunTurn executes one turn against sess. On ErrTurnAborted or ErrCanceled
// the partial result is still returned for auditing and sess is untouched.
func (c *Controller) RunTurn(ctx context.Context, sess *Session, req TurnRequest) (*TurnResult, error) {
	if sess == nil {
		sess = NewSession()
	}
	if sess.Tracker == nil {
		sess.Tracker = signals.NewTracker()
	}

	turnID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "orchestrator.turn", trace.WithAttributes(
		attribute.String("turn.id", turnID),
		attribute.String("turn.tier", req.AccessTier),
	))
	defer span.End()

	t := &turn{
		c:    c,
		sess: sess,
		req:  req,
		st:   newState(turnID),
		log:  c.logger.With(zap.String("turn_id", turnID)),
	}
	err := t.run(ctx)
	res := t.result()

	span.SetAttributes(
		attribute.String("turn.phase", string(res.State.Phase)),
		attribute.Bool("turn.cascade", res.State.CascadeUsed),
		attribute.Bool("turn.fallback_author", res.UsedFallbackAuthor),
		attribute.Bool("turn.forced_interruption", res.ForcedInterruption),
		attribute.Int("turn.errors", len(res.Errors)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.log.Warn("turn failed", zap.String("phase", string(res.State.Phase)), zap.Error(err))
	} else {
		t.log.Info("turn complete",
			zap.String("gate", res.Gate.GateCode),
			zap.Bool("cascade", res.State.CascadeUsed),
			zap.Bool("renderer_used", res.RendererUsed),
			zap.Bool("fallback_author", res.UsedFallbackAuthor),
			zap.Bool("fate_stumbled", res.FateStumbled),
			zap.Bool("forced_interruption", res.ForcedInterruption),
			zap.Int("errors", len(res.Errors)),
			zap.Int("chars", len(res.FinalOutput)))
	}

	if c.sink != nil {
		if serr := c.sink.RecordTurn(ctx, res); serr != nil {
			t.log.Error("trace sink write failed", zap.Error(serr))
		}
	}
	return res, err
}

// #endregion

// #region turn

// turn is the working set of one RunTurn call.
type turn struct {
	c     *Controller
	sess  *Session
	req   TurnRequest
	st    *State
	log   *zap.Logger
	gate  gate.GateRecord
	bias  string
	final string
}

func (t *turn) run(ctx context.Context) error {
	if err := t.phase(ctx, PhaseGateCheck, t.gateCheck); err != nil {
		return err
	}

	limit := t.c.CascadeCap(t.req)
	t.st.CascadeCap = limit
	cs := t.sess.Cascade
	if blocker := fastPathBlocker(cs, t.req, limit); blocker == "" {
		ok, err := t.cascade(ctx, cs)
		if err != nil {
			return err
		}
		if ok {
			if err := t.phase(ctx, PhaseComplete, nil); err != nil {
				return err
			}
			t.sess.Cascade.Excerpt = tailWords(t.final, t.c.continuityWords)
			t.sess.Cascade.BeatCount++
			t.sess.Cascade.Renderer = t.st.Renderer
			t.recordTurnSignal()
			return nil
		}
	} else if cs.Active {
		t.st.CascadeEndReason = blocker
		t.log.Debug("fast path skipped", zap.String("reason", blocker), zap.Int("beat", cs.BeatCount), zap.Int("cap", limit))
	}

	if err := t.phase(ctx, PhaseAuthorPass, t.authorPass); err != nil {
		return err
	}
	if t.st.Author.AuthorizeEmbodied {
		if err := t.phase(ctx, PhaseSDAuthor, t.directivePass); err != nil {
			return err
		}
		if t.st.SD != nil {
			if err := t.phase(ctx, PhaseRenderPass, t.renderPass); err != nil {
				return err
			}
		}
	}
	if err := t.phase(ctx, PhaseIntegrationPass, t.integrationPass); err != nil {
		return err
	}
	if err := t.phase(ctx, PhaseComplete, nil); err != nil {
		return err
	}

	next := CascadeState{}
	if t.st.RendererOutput != "" {
		next = CascadeState{
			Active:   true,
			SD:       t.st.SD,
			Excerpt:  tailWords(t.final, t.c.continuityWords),
			Renderer: t.st.Renderer,
		}
	}
	t.sess.Cascade = next
	if t.st.ForcedInterruption {
		t.recordSignal(signals.SignalInterruption)
	}
	t.recordTurnSignal()
	return nil
}

// phase advances the state machine and runs fn inside a phase span.
func (t *turn) phase(ctx context.Context, p Phase, fn func(context.Context) error) error {
	if err := t.st.advance(p); err != nil {
		return err
	}
	if t.req.OnPhase != nil {
		t.req.OnPhase(p)
	}
	if fn == nil {
		return nil
	}
	return t.span(ctx, p, fn)
}

// span times fn under p and traces it.
func (t *turn) span(ctx context.Context, p Phase, fn func(context.Context) error) error {
	ctx, span := t.c.tracer.Start(ctx, "orchestrator."+strings.ToLower(string(p)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	t.st.Timing[p] += elapsed

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	t.log.Debug("phase done", zap.String("phase", string(p)), zap.Duration("elapsed", elapsed), zap.Error(err))
	return err
}

func (t *turn) recordTurnSignal() {
	t.recordSignal(signals.SignalTurn)
}

func (t *turn) recordSignal(typ signals.SignalType) {
	if err := t.sess.Tracker.RecordSignal(typ, signals.SignalData{}); err != nil {
		t.log.Warn("record signal", zap.String("type", string(typ)), zap.Error(err))
	}
}

// canceled reports whether err ended the turn rather than the call.
func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, codec.ErrCanceled)
}

func (t *turn) abortCanceled(ctx context.Context, p Phase, err error) error {
	t.st.recordError(p, string(codec.KindCanceled), err.Error())
	cause := context.Cause(ctx)
	if cause == nil {
		cause = err
	}
	return fmt.Errorf("%w during %s: %w", ErrCanceled, p, cause)
}

func (t *turn) result() *TurnResult {
	return &TurnResult{
		TurnID:             t.st.TurnID,
		FinalOutput:        t.final,
		State:              t.st,
		Gate:               t.gate,
		RendererUsed:       t.st.RendererOutput != "",
		Renderer:           t.st.Renderer,
		FateStumbled:       t.st.FateStumbled,
		ForcedInterruption: t.st.ForcedInterruption,
		UsedFallbackAuthor: t.st.UsedFallbackAuthor,
		Errors:             t.st.Errors,
		Timing:             t.st.Timing,
	}
}

// #endregion

// #region gate-check

func (t *turn) gateCheck(context.Context) error {
	t.gate = gate.EnforceGates(t.req.AccessTier)
	t.bias = t.req.BiasBlock
	if t.bias == "" {
		t.bias = t.sess.Tracker.BuildBiasBlock()
	}
	return nil
}

// #endregion

// #region cascade-pass

// cascade tries the fast path. ok=false means full orchestration must run;
// err is only set on cancellation.
func (t *turn) cascade(ctx context.Context, cs CascadeState) (ok bool, err error) {
	role := cs.Renderer
	if role == "" {
		role = codec.RoleRenderer
	}

	// The stored directive was narrowed by an earlier turn's gate.
	sd := cs.SD.clone()
	sd.applyGate(t.gate)

	var out string
	err = t.span(ctx, PhaseCascade, func(ctx context.Context) error {
		if err := sd.Validate(); err != nil {
			t.st.recordCallError(PhaseCascade, err)
			t.st.CascadeEndReason = "sd_invalid"
			return nil
		}
		text, err := t.c.inv.Call(ctx, role, cascadeParams.with(cascadeMessages(sd, cs.Excerpt, t.req)))
		if err != nil {
			if canceled(ctx, err) {
				return t.abortCanceled(ctx, PhaseCascade, err)
			}
			t.st.recordCallError(PhaseCascade, err)
			t.st.CascadeEndReason = "call_failed"
			return nil
		}
		out = scrub(text)
		if tooShort(out, t.c.minCascadeLength) {
			t.st.recordError(PhaseCascade, KindCascade,
				fmt.Sprintf("scrubbed output is %d chars, need %d", len([]rune(out)), t.c.minCascadeLength))
			t.st.CascadeEndReason = "malformed"
			out = ""
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if out == "" {
		// A failed beat ends the cascade even if the fallthrough turn aborts.
		t.sess.Cascade = CascadeState{}
		t.log.Info("cascade terminated, running full orchestration", zap.String("reason", t.st.CascadeEndReason))
		return false, nil
	}

	t.st.CascadeUsed = true
	t.st.CascadeBeat = cs.BeatCount + 1
	t.st.RendererOutput = out
	t.st.Renderer = role
	t.final = out
	return true, nil
}

// #endregion

// #region author-pass

func (t *turn) authorPass(ctx context.Context) error {
	msgs := authorMessages(t.req, t.gate, t.bias)

	out, err := t.author(ctx, codec.RolePrimaryAuthor, primaryAuthorParams.with(msgs))
	if err == nil {
		t.st.Author = &out
		return nil
	}
	if canceled(ctx, err) {
		return t.abortCanceled(ctx, PhaseAuthorPass, err)
	}
	t.st.recordCallError(PhaseAuthorPass, err)
	t.log.Warn("primary author failed, using fallback", zap.Error(err))

	out, err = t.author(ctx, codec.RoleFallbackAuthor, fallbackAuthorParams.with(msgs))
	if err != nil {
		if canceled(ctx, err) {
			return t.abortCanceled(ctx, PhaseAuthorPass, err)
		}
		t.st.recordCallError(PhaseAuthorPass, err)
		return fmt.Errorf("%w: both authors failed: %w", ErrTurnAborted, err)
	}
	t.st.Author = &out
	t.st.UsedFallbackAuthor = true
	return nil
}

func (t *turn) author(ctx context.Context, role codec.Role, opts codec.CallOptions) (AuthorOutput, error) {
	text, err := t.c.inv.Call(ctx, role, opts)
	if err != nil {
		return AuthorOutput{}, err
	}
	return parseAuthorOutput(role, text)
}

// #endregion

// #region directive-pass

func (t *turn) directivePass(ctx context.Context) error {
	msgs := sdMessages(t.gate, t.st.Author)
	for _, role := range []codec.Role{codec.RoleRenderer, codec.RoleFallbackRenderer} {
		sd, err := t.directive(ctx, role, msgs)
		if err == nil {
			t.st.SD = sd
			t.st.SDAuthoredByPrimaryRenderer = role == codec.RoleRenderer
			t.st.SDAuthoredByFallbackRenderer = role == codec.RoleFallbackRenderer
			return nil
		}
		if canceled(ctx, err) {
			return t.abortCanceled(ctx, PhaseSDAuthor, err)
		}
		t.st.recordCallError(PhaseSDAuthor, err)
		t.log.Warn("scene directive failed", zap.String("role", string(role)), zap.Error(err))
	}

	t.st.FateStumbled = true
	t.st.ForcedInterruption = true
	return nil
}

// directive asks role for a scene directive and validates it after the
// gate has narrowed it.
func (t *turn) directive(ctx context.Context, role codec.Role, msgs []codec.Message) (*SceneDirective, error) {
	text, err := t.c.inv.Call(ctx, role, directiveParams.with(msgs))
	if err != nil {
		return nil, err
	}
	sd, err := parseSceneDirective(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	sd.applyGate(t.gate)
	if err := sd.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	return sd, nil
}

// #endregion

// #region render-pass

func (t *turn) renderPass(ctx context.Context) error {
	roles := []codec.Role{codec.RoleRenderer, codec.RoleFallbackRenderer}
	if t.st.SDAuthoredByFallbackRenderer {
		roles = roles[1:]
	}

	msgs := renderMessages(t.st.SD, t.st.Author)
	for _, role := range roles {
		text, err := t.c.inv.Call(ctx, role, renderParams.with(msgs))
		if err == nil {
			if out := scrub(text); out != "" {
				t.st.RendererOutput = out
				t.st.Renderer = role
				return nil
			}
			err = &codec.CallError{Kind: codec.KindMalformed, Role: role, Body: "render empty after scrub"}
		}
		if canceled(ctx, err) {
			return t.abortCanceled(ctx, PhaseRenderPass, err)
		}
		t.st.recordCallError(PhaseRenderPass, err)
		t.log.Warn("render failed", zap.String("role", string(role)), zap.Error(err))
	}

	t.st.RendererFailed = true
	t.st.ForcedInterruption = true
	return nil
}

// #endregion

// #region integration-pass

func (t *turn) integrationPass(ctx context.Context) error {
	msgs := integrationMessages(t.req, t.gate, t.bias, t.st)

	text, err := t.c.inv.Call(ctx, codec.RolePrimaryAuthor, integrationParams.with(msgs))
	if err != nil {
		if canceled(ctx, err) {
			return t.abortCanceled(ctx, PhaseIntegrationPass, err)
		}
		t.st.recordCallError(PhaseIntegrationPass, err)

		text, err = t.c.inv.Call(ctx, codec.RoleFallbackAuthor, fallbackIntegrParams.with(msgs))
		if err != nil {
			if canceled(ctx, err) {
				return t.abortCanceled(ctx, PhaseIntegrationPass, err)
			}
			t.st.recordCallError(PhaseIntegrationPass, err)
			t.degrade()
			return nil
		}
		t.st.IntegrationUsedFallback = true
	}

	t.st.IntegrationOutput = strings.TrimSpace(text)
	t.final = t.st.IntegrationOutput
	return nil
}

// degrade picks the best text already produced when integration is lost.
func (t *turn) degrade() {
	source, text := "author narrative", t.st.Author.Narrative
	if t.st.RendererOutput != "" {
		source, text = "renderer output", t.st.RendererOutput
	}
	t.st.recordError(PhaseIntegrationPass, KindDegraded, "integration unavailable, final output is the "+source)
	t.log.Warn("integration degraded", zap.String("source", source))
	t.final = text
}

// #endregion
