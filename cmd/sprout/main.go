// Command sprout is a local-first habit tracker. All writes land in a
// local SQLite database first; a mutation queue mirrors them to a
// hosted backend whenever connectivity allows.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lokigod69/sprout/internal/config"
	"github.com/lokigod69/sprout/internal/queue"
	"github.com/lokigod69/sprout/internal/remote"
	"github.com/lokigod69/sprout/internal/schema"
	"github.com/lokigod69/sprout/internal/store"
	syncengine "github.com/lokigod69/sprout/internal/sync"
	"github.com/lokigod69/sprout/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "sprout",
	Short: "Local-first habit tracker",
	Long: `Sprout tracks identity-based goals and tiny habit seeds.

Every change is written to a local SQLite database and queued for
delivery to the hosted backend. The app is fully usable offline;
queued changes drain automatically when connectivity returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "habits", Title: "Habit Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ui.RenderFail("%v", err))
		os.Exit(1)
	}
}

// app bundles the store, queue, and sync engine a command needs.
type app struct {
	cfg    *config.Config
	store  *store.Store
	queue  *queue.Manager
	client *remote.Client
	engine *syncengine.Engine
}

// openApp loads config, opens the local store, and wires up the sync
// engine. The remote client and engine are nil when no backend is
// configured; local writes still queue for later.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(); err != nil {
		st.Close()
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		store: st,
		queue: queue.New(st.RawDB()),
	}

	if cfg.RemoteConfigured() {
		a.client = remote.NewClient(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			APIKey:  cfg.Remote.APIKey,
			Token:   cfg.Remote.Token,
			Timeout: cfg.Remote.Timeout,
		})
		a.engine = syncengine.New(a.queue, a.client, &syncengine.Config{
			MaxRetries: cfg.Sync.MaxRetries,
			Reporter:   &printReporter{},
			Logger:     log.New(os.Stderr, "[sync] ", log.LstdFlags),
		})
	}

	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// drainNow makes a best-effort drain pass after a local write. Sync
// failures are absorbed: the write already succeeded locally and the
// queue holds the change for the next pass.
func (a *app) drainNow() {
	if a.engine == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := a.engine.DrainOnce(ctx); err != nil && err != syncengine.ErrAlreadyDraining {
		fmt.Println(ui.RenderDim("(saved locally; sync deferred)"))
	}
}

// printReporter surfaces dropped mutations on stderr.
type printReporter struct{}

func (printReporter) ReportPoison(mut *schema.Mutation, err error) {
	fmt.Fprintf(os.Stderr, "%s\n",
		ui.RenderWarn("dropped unsyncable change %s %s after repeated rejections: %v",
			mut.Op, mut.EntityID, err))
}
