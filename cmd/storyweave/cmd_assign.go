package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/storyweave/internal/gate"
	"github.com/danielpatrickdp/storyweave/internal/lens"
)

var (
	assignProtagonist  string
	assignLoveInterest string
	assignGenre        string
	assignTone         string
	assignLength       string
	assignComplex      bool
	assignOverrides    []string
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Assign character lenses for a new story and store them",
	Long: `Runs lens assignment for both leads, records the chosen combos in the
global history and stores the result under a new story id.

Example:
  storyweave assign --protagonist cloaked --love-interest devoted --genre noir --length affair --complex`,
	RunE: runAssign,
}

func init() {
	assignCmd.Flags().StringVar(&assignProtagonist, "protagonist", "", "protagonist archetype")
	assignCmd.Flags().StringVar(&assignLoveInterest, "love-interest", "", "love interest archetype")
	assignCmd.Flags().StringVar(&assignGenre, "genre", "", "story genre")
	assignCmd.Flags().StringVar(&assignTone, "tone", "", "story tone")
	assignCmd.Flags().StringVar(&assignLength, "length", string(gate.LengthTaste), "story length (taste, fling, affair, soulmates)")
	assignCmd.Flags().BoolVar(&assignComplex, "complex", false, "allow a second lens on the love interest")
	assignCmd.Flags().StringArrayVar(&assignOverrides, "override", nil, "role=lens[,lens] replacing selection for that role")
}

func runAssign(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	overrides, err := parseOverrides(assignOverrides)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := lensEngine(cfg, store, logger)
	res, err := engine.AssignLenses(ctx, lens.AssignInput{
		ProtagonistArchetype:  assignProtagonist,
		LoveInterestArchetype: assignLoveInterest,
		Genre:                 assignGenre,
		Tone:                  assignTone,
		StoryLength:           gate.LengthLimit(assignLength),
		Complex:               assignComplex,
		Overrides:             overrides,
	})
	if err != nil {
		return err
	}

	id, err := store.CreateAssignment(ctx, res)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(struct {
		StoryID string       `json:"story_id"`
		Result  *lens.Result `json:"result"`
	}{id, res}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// parseOverrides reads role=lens[,lens] pairs.
func parseOverrides(pairs []string) (map[lens.Role][]lens.ID, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[lens.Role][]lens.ID, len(pairs))
	for _, p := range pairs {
		role, list, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("override %q: want role=lens[,lens]", p)
		}
		r := lens.Role(strings.TrimSpace(role))
		if r != lens.RoleProtagonist && r != lens.RoleLoveInterest {
			return nil, fmt.Errorf("override %q: unknown role %q", p, r)
		}
		for _, id := range strings.Split(list, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out[r] = append(out[r], lens.ID(id))
			}
		}
	}
	return out, nil
}
