package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/abhisek/missionz/internal/replay"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Replay queued results periodically and serve metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, cfg, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		defer printNotices(s, cmd.OutOrStdout())()

		addr := cfg.Metrics.Addr
		if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
			addr = v
		}

		sched, err := replay.NewScheduler(s.Pipeline, cfg.Replay.Interval, s.Log)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = sched.Stop() }()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		errc := make(chan error, 1)
		go func() {
			errc <- srv.ListenAndServe()
		}()
		s.Log.WithField("addr", addr).Info("serving metrics")

		select {
		case <-ctx.Done():
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	watchCmd.Flags().String("metrics-addr", "", "Listen address for /metrics (overrides MISSIONZ_METRICS_ADDR)")
}
