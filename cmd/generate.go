package cmd

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/abhisek/missionz/internal/generation"
	"github.com/abhisek/missionz/internal/ui/theme"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate missions for today",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		out := cmd.OutOrStdout()
		defer printNotices(s, out)()

		date := s.Today()
		if v, _ := cmd.Flags().GetString("date"); v != "" {
			if date, err = civil.ParseDate(v); err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
		}
		single, _ := cmd.Flags().GetBool("single")

		ctx := cmd.Context()
		ms, err := s.Generation.Generate(ctx, date, single)
		var timeout *generation.TimeoutError
		if errors.As(err, &timeout) {
			ms, err = s.Generation.Recheck(ctx, date)
			if err == nil && len(ms) == 0 {
				return timeout
			}
		}
		if err != nil {
			var maxed *generation.MaxMissionsError
			if errors.As(err, &maxed) {
				fmt.Fprintln(out, theme.Hint.Render("You already have every mission for today."))
				return nil
			}
			return err
		}

		for _, m := range ms {
			fmt.Fprintln(out, theme.MissionLine(m))
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().Bool("single", false, "Add one more mission instead of the full set")
	generateCmd.Flags().String("date", "", "Date to generate for as YYYY-MM-DD (default: today)")
}
