package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/abhisek/missionz/internal/app"
	"github.com/abhisek/missionz/internal/config"
	"github.com/abhisek/missionz/internal/logging"
	"github.com/abhisek/missionz/internal/store"
)

var rootCmd = &cobra.Command{
	Use:          "missionz",
	Short:        "Daily math missions for kids",
	Long:         "Missionz: daily math missions with stars, streaks and offline-safe progress tracking.",
	SilenceUsage: true,
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("db", "", "Database path or DSN (overrides MISSIONZ_DB env var)")
	f.String("db-driver", "", "Database driver: sqlite or postgres")
	f.String("config", "", "Path to a YAML config file (overrides MISSIONZ_CONFIG env var)")
	f.String("user", "", "User id (overrides MISSIONZ_USER env var)")
	f.String("tier", "", "Subscription tier: free or paid")
	f.String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(missionsCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(catchupCmd)
	rootCmd.AddCommand(streakCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads .env, the config file and the environment, then
// applies the global flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, fmt.Errorf("load .env: %w", err)
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	overrides := []struct {
		flag string
		dst  *string
	}{
		{"db", &cfg.Store.DSN},
		{"db-driver", &cfg.Store.Driver},
		{"user", &cfg.User.ID},
		{"tier", &cfg.User.Tier},
		{"log-level", &cfg.Log.Level},
	}
	for _, o := range overrides {
		if v, _ := cmd.Flags().GetString(o.flag); v != "" {
			*o.dst = v
		}
	}

	if cfg.Store.Driver == store.DriverSQLite && cfg.Store.DSN != "" {
		if err := store.EnsureDir(cfg.Store.DSN); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// openSession builds the session for the configured user. Callers close it.
func openSession(cmd *cobra.Command) (*app.Session, config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, config.Config{}, err
	}
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, config.Config{}, err
	}
	s, err := app.Open(cmd.Context(), cfg, log)
	if err != nil {
		return nil, config.Config{}, err
	}
	return s, cfg, nil
}
