package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/storyweave/internal/codec"
	"github.com/danielpatrickdp/storyweave/internal/orchestrator"
)

// #region types

// TurnReport is the outcome of one replayed turn.
type TurnReport struct {
	Index      int
	Name       string
	TurnID     string
	Phase      orchestrator.Phase
	Cascade    bool
	Aborted    bool
	Output     string
	Mismatches []string
}

// Summary aggregates a replay run.
type Summary struct {
	TotalTurns     int
	CascadeTurns   int
	FallbackAuthor int
	FateStumbled   int
	Interruptions  int
	Aborted        int
	Mismatched     int
}

// Report is the result of replaying one fixture.
type Report struct {
	Description string
	Turns       []TurnReport
	Summary     Summary
	// Unconsumed counts scripted steps left over per role.
	Unconsumed map[codec.Role]int
}

// Passed reports whether every turn met its expectation and every scripted
// step was used.
func (r *Report) Passed() bool {
	return r.Summary.Mismatched == 0 && len(r.Unconsumed) == 0
}

// #endregion types

// #region run

// Run replays f against scripted services. Each fixture gets its own Layer,
// Controller and Session. Mismatches are reported, not returned; the error is
// reserved for cancellation.
func Run(ctx context.Context, f *Fixture, logger *zap.Logger) (*Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("replay")

	scripts := make(map[codec.Role]*codec.Scripted, len(codec.Roles()))
	services := make([]codec.Service, 0, len(codec.Roles()))
	for _, role := range codec.Roles() {
		s := codec.NewScripted(f.Scripts[role]...)
		scripts[role] = s
		services = append(services, codec.Service{Role: role, Model: "scripted-" + string(role), Transport: s})
	}
	layer := codec.NewLayer(f.Timeout, logger, services...)
	ctrl := orchestrator.NewController(layer, orchestrator.Options{Logger: logger})
	sess := orchestrator.NewSession()

	report := &Report{Description: f.Description}
	story := ""
	for i, ft := range f.Turns {
		req := orchestrator.TurnRequest{
			AccessTier:         f.Tier,
			StoryContext:       story,
			PlayerAction:       ft.Action,
			PlayerDialogue:     ft.Dialogue,
			PendingPetition:    ft.Petition,
			ExplicitInvocation: ft.Invocation,
			PacingMode:         f.PacingMode,
			CascadeCap:         f.CascadeCap,
		}
		if ft.Trigger != "" {
			trigger := ft.Trigger
			req.Trigger = &trigger
		}

		res, err := ctrl.RunTurn(ctx, sess, req)
		aborted := errors.Is(err, orchestrator.ErrTurnAborted)
		if err != nil && !aborted {
			return report, fmt.Errorf("turn %d: %w", i+1, err)
		}

		tr := TurnReport{
			Index:   i + 1,
			Name:    ft.Name,
			TurnID:  res.TurnID,
			Phase:   res.State.Phase,
			Cascade: res.State.CascadeUsed,
			Aborted: aborted,
			Output:  res.FinalOutput,
		}
		tr.Mismatches = check(ft.Expect, res, aborted)
		report.Turns = append(report.Turns, tr)
		tally(&report.Summary, tr, res)

		if len(tr.Mismatches) > 0 {
			logger.Warn("turn mismatch", zap.Int("turn", tr.Index), zap.String("name", tr.Name), zap.Strings("mismatches", tr.Mismatches))
		} else {
			logger.Debug("turn ok", zap.Int("turn", tr.Index), zap.String("phase", string(tr.Phase)), zap.Bool("cascade", tr.Cascade))
		}
		if !aborted {
			story = res.FinalOutput
		}
	}

	for role, s := range scripts {
		if n := s.Remaining(); n > 0 {
			if report.Unconsumed == nil {
				report.Unconsumed = map[codec.Role]int{}
			}
			report.Unconsumed[role] = n
		}
	}

	logger.Info("fixture replayed",
		zap.String("description", f.Description),
		zap.Int("turns", report.Summary.TotalTurns),
		zap.Int("cascade", report.Summary.CascadeTurns),
		zap.Int("mismatched", report.Summary.Mismatched),
		zap.Bool("passed", report.Passed()))
	return report, nil
}

func check(want Expectation, res *orchestrator.TurnResult, aborted bool) []string {
	var out []string
	expectFlag := func(name string, want *bool, got bool) {
		if want != nil && *want != got {
			out = append(out, fmt.Sprintf("%s: want %t, got %t", name, *want, got))
		}
	}

	if want.Aborted != aborted {
		out = append(out, fmt.Sprintf("aborted: want %t, got %t", want.Aborted, aborted))
	}
	phase := want.Phase
	if phase == "" {
		phase = string(orchestrator.PhaseComplete)
		if want.Aborted {
			phase = string(orchestrator.PhaseAuthorPass)
		}
	}
	if string(res.State.Phase) != phase {
		out = append(out, fmt.Sprintf("phase: want %s, got %s", phase, res.State.Phase))
	}
	expectFlag("cascade", want.Cascade, res.State.CascadeUsed)
	expectFlag("renderer_used", want.RendererUsed, res.RendererUsed)
	expectFlag("fallback_author", want.FallbackAuthor, res.UsedFallbackAuthor)
	expectFlag("fate_stumbled", want.FateStumbled, res.FateStumbled)
	expectFlag("forced_interruption", want.ForcedInterruption, res.ForcedInterruption)
	if want.Contains != "" && !strings.Contains(strings.ToLower(res.FinalOutput), strings.ToLower(want.Contains)) {
		out = append(out, fmt.Sprintf("output does not contain %q", want.Contains))
	}
	return out
}

func tally(s *Summary, tr TurnReport, res *orchestrator.TurnResult) {
	s.TotalTurns++
	if tr.Cascade {
		s.CascadeTurns++
	}
	if res.UsedFallbackAuthor {
		s.FallbackAuthor++
	}
	if res.FateStumbled {
		s.FateStumbled++
	}
	if res.ForcedInterruption {
		s.Interruptions++
	}
	if tr.Aborted {
		s.Aborted++
	}
	if len(tr.Mismatches) > 0 {
		s.Mismatched++
	}
}

// #endregion run

// #region run-all

// RunAll loads and replays every fixture path, at most limit at a time.
// Reports come back in path order. A non-positive limit means no limit.
func RunAll(ctx context.Context, paths []string, limit int, logger *zap.Logger) ([]*Report, error) {
	reports := make([]*Report, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, path := range paths {
		g.Go(func() error {
			f, err := LoadFixture(path)
			if err != nil {
				return err
			}
			rep, err := Run(ctx, f, logger)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Totals folds several summaries into one.
func Totals(reports []*Report) Summary {
	var t Summary
	for _, r := range reports {
		t.TotalTurns += r.Summary.TotalTurns
		t.CascadeTurns += r.Summary.CascadeTurns
		t.FallbackAuthor += r.Summary.FallbackAuthor
		t.FateStumbled += r.Summary.FateStumbled
		t.Interruptions += r.Summary.Interruptions
		t.Aborted += r.Summary.Aborted
		t.Mismatched += r.Summary.Mismatched
	}
	return t
}

// UnconsumedRoles lists roles with leftover steps, sorted.
func (r *Report) UnconsumedRoles() []codec.Role {
	roles := make([]codec.Role, 0, len(r.Unconsumed))
	for role := range r.Unconsumed {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// #endregion run-all
