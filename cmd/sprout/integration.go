package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lokigod69/sprout/internal/schema"
	"github.com/lokigod69/sprout/internal/store"
	"github.com/lokigod69/sprout/internal/ui"
)

var integrationCmd = &cobra.Command{
	Use:     "integration",
	GroupID: "advanced",
	Short:   "Manage provider integrations",
	Long: `Toggle per-provider integrations (calendar, health, reminders).
Settings are stored per provider and mirrored to the backend like any
other change.`,
}

var integrationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List integration state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		states, err := a.store.ListIntegrations(cmd.Context())
		if err != nil {
			return err
		}
		if len(states) == 0 {
			fmt.Println(ui.RenderDim("no integrations configured"))
			return nil
		}

		fmt.Println(ui.RenderTitle("Integrations"))
		for _, st := range states {
			mark := ui.RenderDim("disabled")
			if st.Enabled {
				mark = ui.RenderPass("enabled")
			}
			fmt.Printf("  %s  %s\n", ui.RenderAccent(st.Provider), mark)
		}
		return nil
	},
}

var integrationEnableCmd = &cobra.Command{
	Use:   "enable <provider>",
	Short: "Enable an integration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, _ := cmd.Flags().GetString("settings")
		return setIntegration(cmd.Context(), args[0], true, settings)
	},
}

var integrationDisableCmd = &cobra.Command{
	Use:   "disable <provider>",
	Short: "Disable an integration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setIntegration(cmd.Context(), args[0], false, "")
	},
}

func setIntegration(ctx context.Context, provider string, enabled bool, settings string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.store.GetIntegration(ctx, provider)
	if errors.Is(err, sql.ErrNoRows) {
		state = schema.NewIntegrationState(provider)
	} else if err != nil {
		return err
	}

	state.Enabled = enabled
	if settings != "" {
		if !json.Valid([]byte(settings)) {
			return fmt.Errorf("--settings must be valid JSON")
		}
		state.Settings = json.RawMessage(settings)
	}
	state.Touch()

	err = a.store.Tx(ctx, func(tx *store.Tx) error {
		if err := tx.PutIntegration(ctx, state); err != nil {
			return err
		}
		_, err := a.queue.Enqueue(ctx, tx, schema.OpUpdateIntegration, state.ID, state)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update integration: %w", err)
	}

	word := "disabled"
	if enabled {
		word = "enabled"
	}
	fmt.Println(ui.RenderPass("%s integration %s", provider, word))
	a.drainNow()
	return nil
}

func init() {
	integrationEnableCmd.Flags().String("settings", "", "Provider settings as a JSON object")

	integrationCmd.AddCommand(integrationListCmd)
	integrationCmd.AddCommand(integrationEnableCmd)
	integrationCmd.AddCommand(integrationDisableCmd)
	rootCmd.AddCommand(integrationCmd)
}
