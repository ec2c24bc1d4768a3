package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/missionz/internal/ui/theme"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and replay results saved while offline",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued results",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		out := cmd.OutOrStdout()

		entries, err := s.Queue.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, theme.Hint.Render("Nothing queued."))
			return nil
		}
		for _, e := range entries {
			kind := "complete"
			if e.CatchUp {
				kind = "catch-up"
			}
			fmt.Fprintf(out, "%s  %-8s %d/%d in %ds  queued %s  retries %d\n",
				e.MissionID, kind,
				e.Results.CorrectAnswers, e.Results.TotalQuestions, e.Results.TimeSpentSeconds,
				e.Timestamp.Local().Format(time.DateTime), e.Attempts)
		}
		return nil
	},
}

var queueReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay queued results now",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		out := cmd.OutOrStdout()
		defer printNotices(s, out)()

		report, err := s.Pipeline.ReplayPending(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "replayed %d, already done %d, dropped %d, still queued %d\n",
			report.Replayed, report.Stale, report.Dropped, report.Kept)
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueReplayCmd)
}
