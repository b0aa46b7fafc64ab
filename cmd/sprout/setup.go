package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/lokigod69/sprout/internal/config"
	"github.com/lokigod69/sprout/internal/remote"
	"github.com/lokigod69/sprout/internal/ui"
)

var setupCmd = &cobra.Command{
	Use:     "setup",
	GroupID: "advanced",
	Short:   "Configure the hosted backend interactively",
	Long: `Walk through backend configuration and write the config file.

Sprout works fully offline without a backend; setup only enables
mirroring your data to a hosted store so other devices can see it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var baseURL, apiKey, token string

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Backend URL").
					Description("Base URL of your hosted backend (e.g. https://xyz.supabase.co)").
					Value(&baseURL).
					Validate(func(s string) error {
						if s == "" {
							return fmt.Errorf("URL is required")
						}
						if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
							return fmt.Errorf("URL must start with http:// or https://")
						}
						return nil
					}),
				huh.NewInput().
					Title("API key").
					EchoMode(huh.EchoModePassword).
					Value(&apiKey),
				huh.NewInput().
					Title("Access token").
					Description("Leave empty to authenticate with the API key alone").
					EchoMode(huh.EchoModePassword).
					Value(&token),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}

		// Verify the backend answers before persisting anything.
		client := remote.NewClient(remote.Config{
			BaseURL: strings.TrimRight(baseURL, "/"),
			APIKey:  apiKey,
			Token:   token,
		})
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			fmt.Println(ui.RenderWarn("backend did not answer (%v); saving anyway; sync will retry", err))
		} else {
			fmt.Println(ui.RenderPass("backend reachable"))
		}

		dataDir := config.DefaultDataDir()
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dataDir, err)
		}

		path := filepath.Join(dataDir, "config.yaml")
		content := fmt.Sprintf(`remote:
  base_url: %q
  api_key: %q
  token: %q
`, strings.TrimRight(baseURL, "/"), apiKey, token)

		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Println(ui.RenderPass("wrote %s", path))
		fmt.Println(ui.RenderDim("queued changes will sync on the next write or: sprout sync now"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
