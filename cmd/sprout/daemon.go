package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lokigod69/sprout/internal/dashboard"
	"github.com/lokigod69/sprout/internal/lifecycle"
	"github.com/lokigod69/sprout/internal/queue"
	"github.com/lokigod69/sprout/internal/schema"
	syncengine "github.com/lokigod69/sprout/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the connectivity monitor and drain loop in the foreground.

The daemon probes the backend, drains the mutation queue whenever it
comes back online or the periodic timer fires, and warns when pending
changes go stale. Touching the offline file (see config
daemon.offline_file) forces the daemon offline without dropping
anything; removing it resumes sync.

With --dashboard, a WebSocket server broadcasts queue depth and drain
results for live monitoring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		foregroundLog, _ := cmd.Flags().GetBool("stderr")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.client == nil {
			return fmt.Errorf("no backend configured (run: sprout setup)")
		}

		// Rotated file logging unless --stderr is set.
		var logOut io.Writer = os.Stderr
		if !foregroundLog && a.cfg.Daemon.LogFile != "" {
			logOut = &lumberjack.Logger{
				Filename:   a.cfg.Daemon.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			}
		}
		logger := log.New(logOut, "[daemon] ", log.LstdFlags)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Optional dashboard server.
		var dash *dashboard.Server
		if withDashboard || a.cfg.Dashboard.Enabled {
			dash = dashboard.NewServer(&dashboard.Config{
				Port:   a.cfg.Dashboard.Port,
				Logger: log.New(logOut, "[dashboard] ", log.LstdFlags),
			})
			if err := dash.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer func() {
				if err := dash.Stop(); err != nil {
					logger.Printf("dashboard shutdown error: %v", err)
				}
			}()
			fmt.Printf("Dashboard: ws://%s/ws\n", dash.GetAddr())
		}

		// Rebuild the engine so poison reports and drain results reach
		// the daemon log (and dashboard) instead of the terminal.
		engine := syncengine.New(a.queue, a.client, &syncengine.Config{
			MaxRetries: a.cfg.Sync.MaxRetries,
			Reporter:   &daemonReporter{logger: logger, dash: dash},
			Logger:     log.New(logOut, "[sync] ", log.LstdFlags),
		})

		// Connectivity: HTTP probe wrapped by the offline-file override.
		probe := lifecycle.NewProbeSource(a.client, a.cfg.Sync.ProbeInterval,
			log.New(logOut, "[probe] ", log.LstdFlags))

		source, err := lifecycle.NewOverrideSource(probe, a.cfg.Daemon.OfflineFile,
			log.New(logOut, "[override] ", log.LstdFlags))
		if err != nil {
			return fmt.Errorf("failed to watch offline file: %w", err)
		}
		if err := source.Start(); err != nil {
			return fmt.Errorf("failed to start connectivity source: %w", err)
		}
		defer func() {
			if err := source.Stop(); err != nil {
				logger.Printf("connectivity source shutdown error: %v", err)
			}
		}()

		var drainer lifecycle.Drainer = engine
		if dash != nil {
			drainer = &broadcastingDrainer{engine: engine, queue: a.queue, dash: dash}

			// Mirror online/offline transitions to dashboard clients.
			cancelConn := source.Subscribe(func(online bool) {
				dash.BroadcastConnectivity(dashboard.ConnectivityData{Online: online})
			})
			defer cancelConn()
		}

		monitor := lifecycle.New(source, drainer, a.queue, &lifecycle.Config{
			Interval:   a.cfg.Sync.Interval,
			StaleAfter: a.cfg.Sync.StaleAfter,
			Logger:     log.New(logOut, "[monitor] ", log.LstdFlags),
		})

		go probe.Run(ctx)

		fmt.Println("Sync daemon running. Press Ctrl+C to stop.")
		logger.Printf("daemon started (drain every %v, probe every %v)",
			a.cfg.Sync.Interval, a.cfg.Sync.ProbeInterval)

		if err := monitor.Run(ctx); err != nil && err != context.Canceled {
			return err
		}

		logger.Println("daemon stopped")
		return nil
	},
}

// daemonReporter logs poison drops and forwards them to the dashboard.
type daemonReporter struct {
	logger *log.Logger
	dash   *dashboard.Server
}

func (r *daemonReporter) ReportPoison(mut *schema.Mutation, err error) {
	r.logger.Printf("dropped unsyncable change id=%d op=%s entity=%s: %v",
		mut.ID, mut.Op, mut.EntityID, err)
	if r.dash == nil {
		return
	}
	r.dash.BroadcastPoison(dashboard.PoisonData{
		MutationID: mut.ID,
		Op:         string(mut.Op),
		EntityID:   mut.EntityID,
		Error:      err.Error(),
	})
}

// broadcastingDrainer wraps the engine so every drain pass is
// reflected on the dashboard.
type broadcastingDrainer struct {
	engine *syncengine.Engine
	queue  *queue.Manager
	dash   *dashboard.Server
}

func (d *broadcastingDrainer) DrainOnce(ctx context.Context) (syncengine.Result, error) {
	start := time.Now()
	res, err := d.engine.DrainOnce(ctx)
	if err != nil {
		return res, err
	}

	d.dash.BroadcastDrainComplete(dashboard.DrainCompleteData{
		Synced:       res.Synced,
		Failed:       res.Failed,
		Skipped:      res.Skipped,
		Poisoned:     res.Poisoned,
		StillPending: res.StillPending,
		Duration:     time.Since(start),
	})
	if pending, consumed, err := d.queue.Counts(ctx); err == nil {
		d.dash.BroadcastQueueUpdate(dashboard.QueueUpdateData{
			Pending:  pending,
			Consumed: consumed,
		})
	}
	return res, nil
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Serve the WebSocket monitoring dashboard")
	daemonCmd.Flags().Bool("stderr", false, "Log to stderr instead of the rotated log file")

	rootCmd.AddCommand(daemonCmd)
}
