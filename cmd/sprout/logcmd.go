package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/lokigod69/sprout/internal/schema"
	"github.com/lokigod69/sprout/internal/store"
	"github.com/lokigod69/sprout/internal/ui"
)

var logCmd = &cobra.Command{
	Use:     "log",
	GroupID: "habits",
	Short:   "Record daily seed outcomes",
	Long: `Record whether a seed was done or skipped on a given day.
One record per seed per day; logging twice replaces the earlier entry.

The --on flag accepts natural language:

  sprout log done two-pushups --on yesterday
  sprout log skip floss-one --on "last tuesday"`,
}

var logDoneCmd = &cobra.Command{
	Use:   "done <seed>",
	Short: "Mark a seed done for the day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return recordLog(cmd, args[0], schema.LogStatusDone)
	},
}

var logSkipCmd = &cobra.Command{
	Use:   "skip <seed>",
	Short: "Mark a seed skipped for the day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return recordLog(cmd, args[0], schema.LogStatusSkip)
	},
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		seedArg, _ := cmd.Flags().GetString("seed")
		days, _ := cmd.Flags().GetInt("days")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		filter := store.LogFilter{
			From: time.Now().AddDate(0, 0, -days).Format(schema.DateFormat),
		}
		if seedArg != "" {
			s, err := resolveSeed(ctx, a, seedArg)
			if err != nil {
				return err
			}
			filter.SeedID = s.ID
		}

		logs, err := a.store.ListLogs(ctx, filter)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Println(ui.RenderDim("no log entries in this window"))
			return nil
		}

		seedTitles := make(map[string]string)
		fmt.Println(ui.RenderTitle(fmt.Sprintf("Last %d days", days)))
		for _, l := range logs {
			title, ok := seedTitles[l.SeedID]
			if !ok {
				title = shortID(l.SeedID)
				if s, err := a.store.GetSeedContext(ctx, l.SeedID); err == nil {
					title = s.Title
				}
				seedTitles[l.SeedID] = title
			}

			mark := ui.RenderPass("done")
			if l.Status == schema.LogStatusSkip {
				mark = ui.RenderWarn("skip")
			}
			line := fmt.Sprintf("  %s  %s  %s", l.Date, mark, title)
			if l.Note != "" {
				line += ui.RenderDim("  (" + l.Note + ")")
			}
			fmt.Println(line)
		}
		return nil
	},
}

func recordLog(cmd *cobra.Command, seedArg, status string) error {
	on, _ := cmd.Flags().GetString("on")
	note, _ := cmd.Flags().GetString("note")

	day, err := parseDay(on)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	s, err := resolveSeed(ctx, a, seedArg)
	if err != nil {
		return err
	}

	l := schema.NewDailyLog(s.ID, status, day)
	l.Note = note
	if err := l.Validate(); err != nil {
		return err
	}

	op := schema.OpLogDone
	if status == schema.LogStatusSkip {
		op = schema.OpLogSkip
	}

	err = a.store.Tx(ctx, func(tx *store.Tx) error {
		if err := tx.PutLog(ctx, l); err != nil {
			return err
		}
		_, err := a.queue.Enqueue(ctx, tx, op, l.ID, l)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record log: %w", err)
	}

	fmt.Println(ui.RenderPass("%s %s on %s", s.Title, status, l.Date))
	a.drainNow()
	return nil
}

// parseDay resolves an --on value to a calendar day. Empty means
// today; otherwise natural-language phrases like "yesterday" or
// "last tuesday" are accepted, with YYYY-MM-DD as a fallback.
func parseDay(on string) (time.Time, error) {
	if on == "" {
		return time.Now(), nil
	}
	if day, err := time.ParseInLocation(schema.DateFormat, on, time.Local); err == nil {
		return day, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(on, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", on, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("could not understand date %q", on)
	}
	if result.Time.After(time.Now().AddDate(0, 0, 1)) {
		return time.Time{}, fmt.Errorf("cannot log in the future (%s)", result.Time.Format(schema.DateFormat))
	}
	return result.Time, nil
}

func init() {
	logDoneCmd.Flags().String("on", "", "Day to log (natural language or YYYY-MM-DD; default today)")
	logDoneCmd.Flags().String("note", "", "Optional note")
	logSkipCmd.Flags().String("on", "", "Day to log (natural language or YYYY-MM-DD; default today)")
	logSkipCmd.Flags().String("note", "", "Optional note")
	logListCmd.Flags().String("seed", "", "Filter by seed")
	logListCmd.Flags().Int("days", 14, "How many days back to show")

	logCmd.AddCommand(logDoneCmd)
	logCmd.AddCommand(logSkipCmd)
	logCmd.AddCommand(logListCmd)
	rootCmd.AddCommand(logCmd)
}
