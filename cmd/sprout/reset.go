package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/lokigod69/sprout/internal/ui"
)

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "advanced",
	Short:   "Wipe all local data",
	Long: `Delete every goal, seed, log, and queued change from the local
database. The hosted backend is not touched; data already synced
stays there.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		if !force {
			var confirmed bool
			err := huh.NewConfirm().
				Title("Wipe all local data?").
				Description("Goals, seeds, logs, and unsynced queued changes will be deleted.").
				Affirmative("Wipe it").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println(ui.RenderDim("cancelled"))
				return nil
			}
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.ClearAll(cmd.Context()); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}

		fmt.Println(ui.RenderPass("local data wiped"))
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("force", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}
