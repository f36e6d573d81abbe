package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/unseen/internal/api"
	"github.com/nao1215/unseen/internal/browser"
	"github.com/nao1215/unseen/internal/config"
	"github.com/nao1215/unseen/internal/log"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// loadConfig builds the configuration from defaults, the config file and
// the global flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicitly named file must exist; the default locations are optional.
	found := config.FindConfigFile(path)
	switch {
	case found != "":
		f, err := config.LoadConfigFile(found)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
		}
		cfg.Apply(f)
		cfg.ConfigFilePath = found
	case path != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, path)
	}

	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// setupLogger creates the secure structured logger and makes it the default.
func setupLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	logger := log.NewSecureLogger(cmd.ErrOrStderr(), verbose)
	slog.SetDefault(logger)
	return logger
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newBrowser loads the configuration and builds a browser that the caller
// must shut down.
func newBrowser(cmd *cobra.Command) (*browser.Browser, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := setupLogger(cmd, cfg.Verbose)
	b, err := browser.New(cfg, browser.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return b, logger, nil
}

// shutdown stops b and logs instead of masking the command's own error.
func shutdown(b *browser.Browser, logger *slog.Logger) {
	if err := b.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown incomplete", slog.String("error", err.Error()))
	}
}

// apiClient returns a client for the instance configured in cfg. The
// token written by serve is sent when present; without it a running
// instance answers 401.
func apiClient(cfg *config.Config) *api.Client {
	token, err := api.ReadTokenFile(cfg.TokenFile())
	if err != nil {
		return api.NewClient(cfg.ListenAddress)
	}
	return api.NewClient(cfg.ListenAddress, api.WithAuthToken(token))
}

// isRunning reports whether an instance answers on the control API.
func isRunning(ctx context.Context, cfg *config.Config) bool {
	_, err := apiClient(cfg).TorStatus(ctx)
	return !isUnavailable(err)
}
