package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nao1215/unseen/internal/api"
	"github.com/nao1215/unseen/internal/browser"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the browser core and its control API",
		Long: `Serve restores the last session (or opens the start page in the
ephemeral container), probes the ephemeral container and serves the control
API on a loopback address until interrupted.

Requests must carry the bearer token written to api-token.json in the data
directory; the other commands read it from there. The file is readable by
the owner only and is removed on exit.

On exit the session is saved, the storage of non-persistent containers is
wiped and Tor is stopped.

Examples:
  # Serve on the configured address (default 127.0.0.1:7878)
  unseen serve

  # Serve on another loopback port
  unseen serve --listen 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("listen", "l", "", "Control API address (loopback only)")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	listen, err := cmd.Flags().GetString("listen")
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.ListenAddress = listen
	}

	logger := setupLogger(cmd, cfg.Verbose)
	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if isRunning(ctx, cfg) {
		return fmt.Errorf("an instance is already serving on %s", cfg.ListenAddress)
	}

	b, err := browser.New(cfg, browser.WithLogger(logger))
	if err != nil {
		return err
	}
	defer shutdown(b, logger)

	if err := b.Start(ctx); err != nil {
		return err
	}

	logger.Info("unseen started",
		slog.String("dataDir", cfg.DataDir),
		slog.String("listen", cfg.ListenAddress),
		slog.Int("containers", len(b.Containers())),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "control API on http://%s (Ctrl-C to stop)\n", cfg.ListenAddress)

	srv := api.NewServer(b, api.WithLogger(logger))
	if err := api.WriteTokenFile(cfg.TokenFile(), srv.Token()); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.TokenFile()); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("API token not removed", slog.String("error", err.Error()))
		}
	}()
	return srv.ListenAndServe(ctx, cfg.ListenAddress)
}
