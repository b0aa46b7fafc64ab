package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lokigod69/sprout/internal/schema"
	"github.com/lokigod69/sprout/internal/store"
	"github.com/lokigod69/sprout/internal/ui"
)

var goalCmd = &cobra.Command{
	Use:     "goal",
	GroupID: "habits",
	Short:   "Manage identity-based goals",
	Long: `Goals are the identities you are growing into ("I am a runner").
Seeds attach to goals; completing seeds daily is how a goal is lived.`,
}

var goalAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a new goal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, _ := cmd.Flags().GetString("identity")
		persona, _ := cmd.Flags().GetString("persona")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		g := schema.NewGoal(strings.Join(args, " "))
		g.Identity = identity
		g.Persona = persona
		if err := g.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		err = a.store.Tx(ctx, func(tx *store.Tx) error {
			if err := tx.PutGoal(ctx, g); err != nil {
				return err
			}
			_, err := a.queue.Enqueue(ctx, tx, schema.OpCreateGoal, g.ID, g)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to create goal: %w", err)
		}

		fmt.Println(ui.RenderPass("planted goal %s", g.Title))
		fmt.Println(ui.RenderDim("  id: " + g.ID))
		a.drainNow()
		return nil
	},
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		goals, err := a.store.ListGoals(ctx, store.GoalFilter{Status: status})
		if err != nil {
			return err
		}
		if len(goals) == 0 {
			fmt.Println(ui.RenderDim("no goals yet; try: sprout goal add \"Become a runner\""))
			return nil
		}

		fmt.Println(ui.RenderTitle("Goals"))
		for _, g := range goals {
			line := fmt.Sprintf("  %s  %s", ui.RenderAccent(shortID(g.ID)), g.Title)
			if g.Status != schema.GoalStatusActive {
				line += ui.RenderDim(" [" + g.Status + "]")
			}
			fmt.Println(line)
			if g.Identity != "" {
				fmt.Println(ui.RenderDim("      " + g.Identity))
			}
		}
		return nil
	},
}

var goalDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a goal completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateGoalStatus(cmd.Context(), args[0], schema.GoalStatusCompleted)
	},
}

var goalArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a goal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateGoalStatus(cmd.Context(), args[0], schema.GoalStatusArchived)
	},
}

var goalRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a goal and its seeds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		err = a.store.Tx(ctx, func(tx *store.Tx) error {
			if err := tx.DeleteGoal(ctx, g.ID); err != nil {
				return err
			}
			_, err := a.queue.Enqueue(ctx, tx, schema.OpDeleteGoal, g.ID,
				map[string]string{"id": g.ID})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to delete goal: %w", err)
		}

		fmt.Println(ui.RenderPass("deleted goal %s", g.Title))
		a.drainNow()
		return nil
	},
}

func updateGoalStatus(ctx context.Context, arg, status string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	g, err := resolveGoal(ctx, a, arg)
	if err != nil {
		return err
	}

	g.Status = status
	g.Touch()

	err = a.store.Tx(ctx, func(tx *store.Tx) error {
		if err := tx.PutGoal(ctx, g); err != nil {
			return err
		}
		_, err := a.queue.Enqueue(ctx, tx, schema.OpUpdateGoal, g.ID, g)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}

	fmt.Println(ui.RenderPass("goal %s is now %s", g.Title, status))
	a.drainNow()
	return nil
}

// resolveGoal looks a goal up by full ID, unique ID prefix, or exact
// title match.
func resolveGoal(ctx context.Context, a *app, arg string) (*schema.Goal, error) {
	if g, err := a.store.GetGoalContext(ctx, arg); err == nil {
		return g, nil
	}

	goals, err := a.store.ListGoals(ctx, store.GoalFilter{})
	if err != nil {
		return nil, err
	}

	var match *schema.Goal
	for _, g := range goals {
		if strings.HasPrefix(g.ID, arg) || strings.EqualFold(g.Title, arg) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous goal %q", arg)
			}
			match = g
		}
	}
	if match == nil {
		return nil, fmt.Errorf("goal %q not found", arg)
	}
	return match, nil
}

// shortID trims a UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	goalAddCmd.Flags().String("identity", "", "The identity this goal builds (\"I am a runner\")")
	goalAddCmd.Flags().String("persona", "", "Persona or life area this goal belongs to")
	goalListCmd.Flags().String("status", "", "Filter by status (active, completed, archived)")

	goalCmd.AddCommand(goalAddCmd)
	goalCmd.AddCommand(goalListCmd)
	goalCmd.AddCommand(goalDoneCmd)
	goalCmd.AddCommand(goalArchiveCmd)
	goalCmd.AddCommand(goalRmCmd)
	rootCmd.AddCommand(goalCmd)
}
