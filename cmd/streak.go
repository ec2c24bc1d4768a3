package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/missionz/internal/streak"
	"github.com/abhisek/missionz/internal/ui/theme"
)

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show the current streak and totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		out := cmd.OutOrStdout()
		defer printNotices(s, out)()

		st, err := s.Fetcher.Streak(cmd.Context())
		if err != nil {
			return err
		}
		current := streak.Effective(*st, s.Today())
		fmt.Fprintln(out, theme.StreakCard(*st, current, streak.NextMilestone(current)))
		return nil
	},
}
