package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/gradecast/internal/metrics"
	"github.com/KaramelBytes/gradecast/internal/server"
	"github.com/KaramelBytes/gradecast/internal/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON HTTP API for dashboards",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		addr := c.ListenAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		logger := newLogger(c)
		srv := server.New(server.Options{
			SampleDir:        c.SampleDir,
			MaxUploadBytes:   int64(c.MaxUploadMB) << 20,
			DefaultThreshold: c.DefaultThreshold,
		}, session.NewStore(), newPipeline(c, logger), metrics.New(), logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger.Info("starting server", slog.String("addr", addr), slog.String("sample_dir", c.SampleDir))
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config listen_addr)")
}
