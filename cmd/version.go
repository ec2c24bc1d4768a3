package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set via -ldflags at build time.
var version = "(devel)"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the missionz version and build details",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "missionz", version)
		if short, _ := cmd.Flags().GetBool("short"); short {
			return nil
		}
		fmt.Fprintf(out, "go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		if rev, dirty := buildRevision(); rev != "" {
			if dirty {
				rev += " (modified)"
			}
			fmt.Fprintln(out, "commit:", rev)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "Print only the version")
}

// buildRevision returns the VCS revision stamped into the binary, if any.
func buildRevision() (rev string, dirty bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return rev, dirty
}
