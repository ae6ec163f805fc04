package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/voicechanger/internal/server"
	"github.com/audiolibrelab/voicechanger/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control server for remote clients",
	Long: `Start the VoiceChanger control server. Any UI on the same network can
drive the recording session over HTTP and follow its state on /ws.
Prometheus metrics are exposed on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Server.Port = port
		}
		if verboseLevel == 0 {
			gin.SetMode(gin.ReleaseMode)
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		advisories := server.NewAdvisoryLog(0)
		sess, err := newSession(advisories, reg, session.CompletionMode(cfg.Session.PlaybackCompletion))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Ask once up front so clients see the permission state immediately
		if err := sess.RequestPermission(ctx); err != nil && !errors.Is(err, session.ErrPermissionDenied) {
			slog.Warn("Initial permission request failed", "error", err)
		}

		srv := server.New(sess, cfg, advisories, reg)

		slog.Info("VoiceChanger control server starting", "addr", cfg.ListenAddr(), "profile", cfg.Profile)

		if err := srv.Run(ctx, cfg.ListenAddr()); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port for the control server (overrides config)")
}
