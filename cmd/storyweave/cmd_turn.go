package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/storyweave/internal/lens"
	"github.com/danielpatrickdp/storyweave/internal/orchestrator"
	"github.com/danielpatrickdp/storyweave/internal/signals"
	"github.com/danielpatrickdp/storyweave/internal/state"
)

var (
	turnTier    string
	turnPacing  string
	turnStoryID string
	turnBeats   int
)

var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "Play an interactive session, one turn per input line",
	Long: `Reads reader actions from stdin and runs each as a turn.

Lines starting with '"' are dialogue. Special lines:
  !event <text>   inject a story event (ends any cascade)
  !petition       mark a pending petition for this turn
  !beat <type>    classify the next turn's story beat for the lens metadata
                  (victory, cost, failure, competence_reveal, core_reveal,
                  baseline_established)
  quit | exit     leave

Reader signals, folded into the preference tracker without running a turn:
  !pick <category>      tension, tenderness, banter or danger
  !intensity <level>    low, medium, high or peak
  !escalate             the reader pushed the scene further
  !archetype <name>     the reader favored a lead archetype
  !abandon              the reader walked away from an interrupted scene

With --story, every completed turn advances the lens metadata by one beat and
writes the assignment back.`,
	RunE: runTurns,
}

func init() {
	turnCmd.Flags().StringVar(&turnTier, "tier", "free", "access tier (free, pass, sub, premium)")
	turnCmd.Flags().StringVar(&turnPacing, "pacing", "standard", "pacing mode (slow, standard, fast)")
	turnCmd.Flags().StringVar(&turnStoryID, "story", "", "story id whose lens assignment shapes the author")
	turnCmd.Flags().IntVar(&turnBeats, "beats", 20, "expected story length in turns, for lens progress")
}

// #region main
func runTurns(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var assignment *lens.Result
	if turnStoryID != "" {
		rec, err := store.LoadAssignment(ctx, turnStoryID)
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("story %s has no lens assignment, run assign first", turnStoryID)
		}
		if err != nil {
			return err
		}
		assignment = rec.Result
	}

	layer, closeLayer, err := buildLayer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLayer()

	sink, err := orchestrator.NewSQLTraceSink(store.DB())
	if err != nil {
		return err
	}
	ctrl := orchestrator.NewController(layer, controllerOptions(cfg, sink, logger))
	sess := orchestrator.NewSession()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "storyweave ready. tier=%s pacing=%s db=%s\n", turnTier, turnPacing, cfg.DBPath)
	fmt.Fprintln(out, "Type an action (or 'quit' to exit):")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	story := ""
	petition := false
	turnNum := 0
	var beat lens.BeatType
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "quit" || line == "exit":
			return nil
		case line == "!petition":
			petition = true
			continue
		case strings.HasPrefix(line, "!beat "):
			b, err := lens.ParseBeat(strings.TrimPrefix(line, "!beat "))
			if err != nil {
				fmt.Fprintf(out, "[%v]\n", err)
				continue
			}
			beat = b
			continue
		}
		if typ, data, ok, err := readerSignal(line); ok {
			if err == nil {
				err = sess.Tracker.RecordSignal(typ, data)
			}
			if err != nil {
				fmt.Fprintf(out, "[signal rejected: %v]\n", err)
			}
			continue
		}

		req := orchestrator.TurnRequest{
			AccessTier:      turnTier,
			StoryContext:    story,
			PacingMode:      turnPacing,
			PendingPetition: petition,
		}
		switch {
		case strings.HasPrefix(line, "!event "):
			ev := strings.TrimSpace(strings.TrimPrefix(line, "!event "))
			req.Trigger = &ev
		case strings.HasPrefix(line, `"`):
			req.PlayerDialogue = strings.Trim(line, `"`)
		default:
			req.PlayerAction = line
		}
		if assignment != nil {
			req.LensDirectives = lens.Directives(assignment, progress(turnNum, turnBeats))
		}

		res, err := ctrl.RunTurn(ctx, sess, req)
		if errors.Is(err, orchestrator.ErrCanceled) {
			return err
		}
		if err != nil {
			logger.Warn("turn failed", zap.Error(err))
			fmt.Fprintf(out, "[turn failed: %v]\n", err)
			continue
		}
		petition = false
		if assignment != nil {
			b := beatFor(res, beat)
			if err := lens.ApplyBeat(assignment, b, progress(turnNum, turnBeats)); err != nil {
				return err
			}
			if err := store.SaveAssignment(ctx, turnStoryID, assignment); err != nil {
				return err
			}
		}
		beat = ""
		turnNum++
		story = tailStory(story, res.FinalOutput)

		fmt.Fprintf(out, "\n%s\n\n", res.FinalOutput)
		fmt.Fprintf(out, "[%s] gate=%s cascade=%t renderer=%t fallback=%t interrupted=%t\n",
			shortID(res.TurnID), res.Gate.GateCode, res.State.CascadeUsed, res.RendererUsed,
			res.UsedFallbackAuthor, res.ForcedInterruption)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// #endregion main

// #region signals

// readerSignal parses a reader-signal command. ok is false when line is not
// one; err reports a malformed one.
func readerSignal(line string) (typ signals.SignalType, data signals.SignalData, ok bool, err error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.ToLower(strings.TrimSpace(arg))
	switch cmd {
	case "!pick":
		switch c := signals.Category(arg); c {
		case signals.CategoryTension, signals.CategoryTenderness, signals.CategoryBanter, signals.CategoryDanger:
			return signals.SignalCategorySelected, signals.SignalData{Category: c}, true, nil
		}
		return "", data, true, fmt.Errorf("unknown category %q", arg)
	case "!intensity":
		switch i := signals.Intensity(arg); i {
		case signals.IntensityLow, signals.IntensityMedium, signals.IntensityHigh, signals.IntensityPeak:
			return signals.SignalIntensity, signals.SignalData{Intensity: i}, true, nil
		}
		return "", data, true, fmt.Errorf("unknown intensity %q", arg)
	case "!escalate":
		return signals.SignalEscalation, data, true, nil
	case "!abandon":
		return signals.SignalAbandonment, data, true, nil
	case "!archetype":
		if arg == "" {
			return "", data, true, fmt.Errorf("archetype name required")
		}
		return signals.SignalArchetypeSelected, signals.SignalData{Archetype: arg}, true, nil
	}
	return "", data, false, nil
}

// beatFor classifies a completed turn. An explicit override wins.
func beatFor(res *orchestrator.TurnResult, override lens.BeatType) lens.BeatType {
	switch {
	case override != "":
		return override
	case res.ForcedInterruption || res.FateStumbled:
		return lens.BeatCost
	case res.RendererUsed:
		return lens.BeatVictory
	}
	return lens.BeatBaselineEstablished
}

// #endregion signals

// #region helpers

func progress(turn, beats int) float64 {
	if beats <= 0 {
		return 0
	}
	p := float64(turn) / float64(beats)
	if p > 1 {
		return 1
	}
	return p
}

// tailStory keeps the running story context bounded.
func tailStory(story, next string) string {
	const keep = 4000
	s := strings.TrimSpace(story + "\n\n" + next)
	if r := []rune(s); len(r) > keep {
		s = string(r[len(r)-keep:])
	}
	return s
}

// #endregion helpers
