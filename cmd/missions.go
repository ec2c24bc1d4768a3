package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/missionz/internal/app"
	"github.com/abhisek/missionz/internal/events"
	"github.com/abhisek/missionz/internal/ui/theme"
)

var missionsCmd = &cobra.Command{
	Use:   "missions",
	Short: "List missions for a month",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		out := cmd.OutOrStdout()
		defer printNotices(s, out)()

		year, month := s.Today().Year, s.Today().Month
		if v, _ := cmd.Flags().GetString("month"); v != "" {
			t, err := time.Parse("2006-01", v)
			if err != nil {
				return fmt.Errorf("--month must be YYYY-MM: %w", err)
			}
			year, month = t.Year(), t.Month()
		}

		ms, err := s.Fetcher.Missions(cmd.Context(), year, month)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, theme.Title.Render(fmt.Sprintf("Missions for %s %d", month, year)))
		if len(ms) == 0 {
			fmt.Fprintln(out, theme.Hint.Render("No missions yet. Run `missionz generate` to create today's."))
			return nil
		}
		for _, m := range ms {
			fmt.Fprintln(out, theme.MissionLine(m))
		}
		return nil
	},
}

func init() {
	missionsCmd.Flags().String("month", "", "Month to list as YYYY-MM (default: current month)")
}

// printNotices prints governor and pipeline events while a command runs.
// The returned func unsubscribes.
func printNotices(s *app.Session, out io.Writer) func() {
	return s.Bus.Subscribe(func(e events.Event) {
		switch ev := e.(type) {
		case events.RateLimitWarning:
			fmt.Fprintln(out, theme.Warning.Render(
				fmt.Sprintf("Heads up: %d of %d requests used this hour.", ev.Used, ev.Limit)))
		case events.RateLimited:
			fmt.Fprintln(out, theme.Failure.Render(
				fmt.Sprintf("Request limit reached (%d/%d). Try again at %s.", ev.Used, ev.Limit, ev.RetryAt.Local().Format(time.Kitchen))))
		case events.GenerationTimedOut:
			fmt.Fprintln(out, theme.Warning.Render(
				fmt.Sprintf("Mission generation is taking longer than %ds, checking again shortly.", ev.TimeoutSecs)))
		case events.MissionCompletionFailed:
			if ev.Queued {
				fmt.Fprintln(out, theme.Warning.Render("Could not save right now. Your result is stored and will sync later."))
			}
		case events.ReplayDropped:
			fmt.Fprintln(out, theme.Failure.Render(
				fmt.Sprintf("Dropped queued result for %s: %v", ev.MissionID, ev.Err)))
		}
	})
}
