package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lokigod69/sprout/internal/catalog"
	"github.com/lokigod69/sprout/internal/schema"
	"github.com/lokigod69/sprout/internal/store"
	"github.com/lokigod69/sprout/internal/ui"
)

var seedCmd = &cobra.Command{
	Use:     "seed",
	GroupID: "habits",
	Short:   "Manage habit seeds",
	Long: `Seeds are tiny habits attached to a goal: after an anchor routine
you already have, do one small action. Log them daily with
"sprout log done <seed>".`,
}

var seedPlantCmd = &cobra.Command{
	Use:   "plant <goal>",
	Short: "Plant a new seed on a goal",
	Long: `Plant a seed on a goal, either from scratch:

  sprout seed plant running --title "Lace up" --anchor "after I pour coffee" --action "put on running shoes"

or from the built-in catalog:

  sprout seed plant running --from two-pushups`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		anchor, _ := cmd.Flags().GetString("anchor")
		action, _ := cmd.Flags().GetString("action")
		from, _ := cmd.Flags().GetString("from")

		if from != "" {
			cat, err := catalog.Load()
			if err != nil {
				return err
			}
			tmpl, ok := cat.Find(from)
			if !ok {
				return fmt.Errorf("no catalog template %q (see: sprout seed catalog)", from)
			}
			if title == "" {
				title = tmpl.Title
			}
			if anchor == "" {
				anchor = tmpl.Anchor
			}
			if action == "" {
				action = tmpl.Action
			}
		}
		if title == "" {
			return fmt.Errorf("--title is required (or use --from <template>)")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		g, err := resolveGoal(ctx, a, args[0])
		if err != nil {
			return err
		}

		s := schema.NewSeed(g.ID, title, anchor, action)
		if err := s.Validate(); err != nil {
			return err
		}

		err = a.store.Tx(ctx, func(tx *store.Tx) error {
			if err := tx.PutSeed(ctx, s); err != nil {
				return err
			}
			_, err := a.queue.Enqueue(ctx, tx, schema.OpCreateSeed, s.ID, s)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to plant seed: %w", err)
		}

		fmt.Println(ui.RenderPass("planted seed %s on %s", s.Title, g.Title))
		if s.Anchor != "" {
			fmt.Println(ui.RenderDim(fmt.Sprintf("  %s, %s", s.Anchor, s.Action)))
		}
		a.drainNow()
		return nil
	},
}

var seedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List seeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		goalArg, _ := cmd.Flags().GetString("goal")
		status, _ := cmd.Flags().GetString("status")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		filter := store.SeedFilter{Status: status}
		if goalArg != "" {
			g, err := resolveGoal(ctx, a, goalArg)
			if err != nil {
				return err
			}
			filter.GoalID = g.ID
		}

		seeds, err := a.store.ListSeeds(ctx, filter)
		if err != nil {
			return err
		}
		if len(seeds) == 0 {
			fmt.Println(ui.RenderDim("no seeds yet; try: sprout seed plant <goal> --from two-pushups"))
			return nil
		}

		fmt.Println(ui.RenderTitle("Seeds"))
		for _, s := range seeds {
			line := fmt.Sprintf("  %s  %s", ui.RenderAccent(shortID(s.ID)), s.Title)
			if s.Status != schema.SeedStatusActive {
				line += ui.RenderDim(" [" + s.Status + "]")
			}
			fmt.Println(line)
			if s.Anchor != "" {
				fmt.Println(ui.RenderDim(fmt.Sprintf("      %s, %s", s.Anchor, s.Action)))
			}
		}
		return nil
	},
}

var seedPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a seed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateSeedStatus(cmd.Context(), args[0], schema.SeedStatusPaused)
	},
}

var seedResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused seed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateSeedStatus(cmd.Context(), args[0], schema.SeedStatusActive)
	},
}

var seedRetireCmd = &cobra.Command{
	Use:   "retire <id>",
	Short: "Retire a seed for good",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateSeedStatus(cmd.Context(), args[0], schema.SeedStatusRetired)
	},
}

var seedRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a seed and its logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		s, err := resolveSeed(ctx, a, args[0])
		if err != nil {
			return err
		}

		err = a.store.Tx(ctx, func(tx *store.Tx) error {
			if err := tx.DeleteSeed(ctx, s.ID); err != nil {
				return err
			}
			_, err := a.queue.Enqueue(ctx, tx, schema.OpDeleteSeed, s.ID,
				map[string]string{"id": s.ID})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to delete seed: %w", err)
		}

		fmt.Println(ui.RenderPass("deleted seed %s", s.Title))
		a.drainNow()
		return nil
	},
}

var seedCatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Browse the built-in seed templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load()
		if err != nil {
			return err
		}

		for _, category := range cat.Categories() {
			fmt.Println(ui.RenderTitle(strings.ToUpper(category[:1]) + category[1:]))
			for _, t := range cat.ByCategory(category) {
				fmt.Printf("  %s  %s\n", ui.RenderAccent(t.Slug), t.Title)
				fmt.Println(ui.RenderDim(fmt.Sprintf("      %s, %s", t.Anchor, t.Action)))
			}
		}
		return nil
	},
}

func updateSeedStatus(ctx context.Context, arg, status string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := resolveSeed(ctx, a, arg)
	if err != nil {
		return err
	}

	s.Status = status
	s.Touch()

	err = a.store.Tx(ctx, func(tx *store.Tx) error {
		if err := tx.PutSeed(ctx, s); err != nil {
			return err
		}
		_, err := a.queue.Enqueue(ctx, tx, schema.OpUpdateSeed, s.ID, s)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update seed: %w", err)
	}

	fmt.Println(ui.RenderPass("seed %s is now %s", s.Title, status))
	a.drainNow()
	return nil
}

// resolveSeed looks a seed up by full ID, unique ID prefix, or exact
// title match.
func resolveSeed(ctx context.Context, a *app, arg string) (*schema.Seed, error) {
	if s, err := a.store.GetSeedContext(ctx, arg); err == nil {
		return s, nil
	}

	seeds, err := a.store.ListSeeds(ctx, store.SeedFilter{})
	if err != nil {
		return nil, err
	}

	var match *schema.Seed
	for _, s := range seeds {
		if strings.HasPrefix(s.ID, arg) || strings.EqualFold(s.Title, arg) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous seed %q", arg)
			}
			match = s
		}
	}
	if match == nil {
		return nil, fmt.Errorf("seed %q not found", arg)
	}
	return match, nil
}

func init() {
	seedPlantCmd.Flags().String("title", "", "Seed title")
	seedPlantCmd.Flags().String("anchor", "", "Existing routine the habit attaches to")
	seedPlantCmd.Flags().String("action", "", "The tiny behavior itself")
	seedPlantCmd.Flags().String("from", "", "Catalog template slug to plant from")
	seedListCmd.Flags().String("goal", "", "Filter by goal")
	seedListCmd.Flags().String("status", "", "Filter by status (active, paused, retired)")

	seedCmd.AddCommand(seedPlantCmd)
	seedCmd.AddCommand(seedListCmd)
	seedCmd.AddCommand(seedPauseCmd)
	seedCmd.AddCommand(seedResumeCmd)
	seedCmd.AddCommand(seedRetireCmd)
	seedCmd.AddCommand(seedRmCmd)
	seedCmd.AddCommand(seedCatalogCmd)
	rootCmd.AddCommand(seedCmd)
}
