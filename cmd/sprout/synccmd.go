package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lokigod69/sprout/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Manage the mutation queue and backend sync",
	Long: `Inspect and drive synchronization with the hosted backend.

Local writes always land in the mutation queue first. The daemon (or
any write command) drains the queue opportunistically; these commands
drive or inspect that process by hand.`,
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Drain the mutation queue immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.engine == nil {
			return fmt.Errorf("no backend configured (run: sprout setup)")
		}

		ctx := cmd.Context()
		start := time.Now()
		res, err := a.engine.DrainOnce(ctx)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Println(ui.RenderPass("synced %d change(s) in %v", res.Synced, time.Since(start).Round(time.Millisecond)))
		if res.Poisoned > 0 {
			fmt.Println(ui.RenderWarn("dropped %d unsyncable change(s)", res.Poisoned))
		}
		if res.StillPending > 0 {
			fmt.Println(ui.RenderWarn("%d change(s) still pending", res.StillPending))
		}
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth and connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		pending, consumed, err := a.queue.Counts(ctx)
		if err != nil {
			return err
		}

		fmt.Println(ui.RenderTitle("Sync Status"))
		fmt.Printf("  pending:  %s\n", ui.RenderAccent(fmt.Sprintf("%d", pending)))
		fmt.Printf("  consumed: %s\n", ui.RenderAccent(fmt.Sprintf("%d", consumed)))

		if age, ok, err := a.queue.OldestPendingAge(ctx); err == nil && ok {
			line := fmt.Sprintf("  oldest pending: %v", age.Round(time.Second))
			if age > a.cfg.Sync.StaleAfter {
				fmt.Println(ui.RenderWarn("oldest pending change is %v old; sync soon", age.Round(time.Hour)))
			}
			fmt.Println(ui.RenderDim(line))
		}

		if a.client == nil {
			fmt.Println(ui.RenderDim("  backend: not configured"))
			return nil
		}

		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.client.Ping(probeCtx); err != nil {
			fmt.Printf("  backend: %s\n", ui.RenderWarn("unreachable"))
		} else {
			fmt.Printf("  backend: %s\n", ui.RenderPass("online"))
		}
		return nil
	},
}

var syncPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove old consumed queue records",
	Long: `Delete consumed mutation records older than the retention window.
Pending records are never purged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if olderThan == 0 {
			olderThan = a.cfg.Sync.PurgeRetention
		}

		n, err := a.queue.PurgeConsumed(cmd.Context(), olderThan)
		if err != nil {
			return fmt.Errorf("purge failed: %w", err)
		}

		fmt.Println(ui.RenderPass("purged %d consumed record(s) older than %v", n, olderThan))
		return nil
	},
}

func init() {
	syncPurgeCmd.Flags().Duration("older-than", 0, "Retention window (default from config, 168h)")

	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncPurgeCmd)
	rootCmd.AddCommand(syncCmd)
}
