package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/abhisek/missionz/internal/missionmode"
	"github.com/abhisek/missionz/internal/ui/theme"
)

var completeCmd = &cobra.Command{
	Use:   "complete <mission-id>",
	Short: "Record the result of a mission",
	Long:  "Record the result of a mission. Missions dated before today are completed as catch-ups.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runComplete(cmd, args[0], false)
	},
}

var catchupCmd = &cobra.Command{
	Use:   "catchup <mission-id>",
	Short: "Record a late result for a past mission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runComplete(cmd, args[0], true)
	},
}

func init() {
	for _, c := range []*cobra.Command{completeCmd, catchupCmd} {
		c.Flags().Int("correct", 0, "Number of correct answers")
		c.Flags().Int("total", 10, "Number of questions")
		c.Flags().Int64("elapsed-ms", 0, "Time spent in milliseconds")
		_ = c.MarkFlagRequired("correct")
	}
}

func runComplete(cmd *cobra.Command, id string, catchUp bool) error {
	s, _, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	out := cmd.OutOrStdout()
	defer printNotices(s, out)()

	correct, _ := cmd.Flags().GetInt("correct")
	total, _ := cmd.Flags().GetInt("total")
	elapsed, _ := cmd.Flags().GetInt64("elapsed-ms")
	tally := missionmode.Tally{Correct: correct, Total: total, ElapsedMs: elapsed}

	var rep *missionmode.Report
	if catchUp {
		ctx := missionmode.WithCatchUp(missionmode.WithMission(cmd.Context(), id))
		rep, err = s.Adapter.Report(ctx, tally)
	} else {
		rep, err = s.Complete(cmd.Context(), id, tally)
	}
	if err != nil {
		return err
	}

	printReport(out, rep)
	if rep.Outcome.Streak != nil && !rep.Queued {
		fmt.Fprintln(out, theme.Body.Render(fmt.Sprintf("Streak: %d days", rep.Outcome.Streak.CurrentStreak)))
	}
	return nil
}

func printReport(out io.Writer, rep *missionmode.Report) {
	fmt.Fprintln(out, theme.Stars(rep.Stars)+"  "+theme.Body.Render(rep.Summary))
}
