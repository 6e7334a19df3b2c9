package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/storyweave/internal/logging"
)

var (
	historyClear bool
	turnsLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the global lens history and stored assignments",
	RunE:  runHistory,
}

var turnsCmd = &cobra.Command{
	Use:   "turns",
	Short: "Show the most recent turn trace entries",
	RunE:  runTurnLog,
}

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "clear the global lens history")
	turnsCmd.Flags().IntVarP(&turnsLimit, "limit", "n", 20, "number of entries")
}

// #region history
func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if historyClear {
		if err := store.ClearHistory(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "lens history cleared")
		return nil
	}

	entries, err := store.History(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "=== Lens History (%d) ===\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\n", e.ID, e.Combo, e.CreatedAt.Format(time.RFC3339))
	}

	recs, err := store.ListAssignments(ctx, 20)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n=== Assignments (%d) ===\n", len(recs))
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s %v\t%s %v\t%s\n", r.StoryID,
			r.Result.Protagonist.Archetype, r.Result.Protagonist.Lenses,
			r.Result.LoveInterest.Archetype, r.Result.LoveInterest.Lenses,
			r.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

// #endregion history

// #region turns
func runTurnLog(cmd *cobra.Command, _ []string) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := logging.EnsureTurnLog(store.DB()); err != nil {
		return err
	}
	entries, err := logging.RecentTurns(store.DB(), turnsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TURN\tTIER\tGATE\tPHASE\tRENDERER\tCASCADE\tFALLBACK\tSTUMBLED\tCHARS\tAT")
	for _, e := range entries {
		renderer := e.RendererUsed
		if renderer == "" {
			renderer = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%t\t%t\t%d\t%s\n",
			shortID(e.TurnID), e.Tier, e.GateCode, e.FinalPhase, renderer,
			e.CascadeUsed, e.UsedFallbackAuthor, e.FateStumbled, e.OutputChars,
			e.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion turns
