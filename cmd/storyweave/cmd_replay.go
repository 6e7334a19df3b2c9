package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/storyweave/internal/replay"
)

var replayParallel int

var replayCmd = &cobra.Command{
	Use:   "replay <fixture.yaml>...",
	Short: "Replay scripted session fixtures and check their expectations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().IntVarP(&replayParallel, "parallel", "p", 4, "fixtures replayed at once")
}

// #region replay
func runReplay(cmd *cobra.Command, args []string) error {
	reports, err := replay.RunAll(cmd.Context(), args, replayParallel, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for i, rep := range reports {
		status := "PASS"
		if !rep.Passed() {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(out, "%s  %s (%s)\n", status, args[i], rep.Description)
		for _, tr := range rep.Turns {
			for _, m := range tr.Mismatches {
				fmt.Fprintf(out, "      turn %d %s: %s\n", tr.Index, tr.Name, m)
			}
		}
		for _, role := range rep.UnconsumedRoles() {
			fmt.Fprintf(out, "      %s: %d scripted steps unused\n", role, rep.Unconsumed[role])
		}
	}

	t := replay.Totals(reports)
	fmt.Fprintln(out, "\n=== Replay Summary ===")
	fmt.Fprintf(out, "Fixtures:       %d (%d failed)\n", len(reports), failed)
	fmt.Fprintf(out, "Turns:          %d\n", t.TotalTurns)
	fmt.Fprintf(out, "Cascade turns:  %d\n", t.CascadeTurns)
	fmt.Fprintf(out, "Fallback:       %d\n", t.FallbackAuthor)
	fmt.Fprintf(out, "Fate stumbled:  %d\n", t.FateStumbled)
	fmt.Fprintf(out, "Interruptions:  %d\n", t.Interruptions)
	fmt.Fprintf(out, "Aborted:        %d\n", t.Aborted)

	if failed > 0 {
		return fmt.Errorf("%d of %d fixtures failed", failed, len(reports))
	}
	return nil
}

// #endregion replay
