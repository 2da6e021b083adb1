package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/keepalive"
	"github.com/jpalmerr/keepalive/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// runCmd keeps every token's session alive.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Keep sessions alive",
	Long: `Authenticate every token and keep its session alive.

The command will:
  - Load configuration from the specified YAML file
  - Read tokens from tokens_file (or --tokens), one per line
  - Authenticate each token and ping on the configured interval
  - Serve session status on status_port, if set

Tokens run one after another unless mode is "pool". The command runs until
every session has ended, or until interrupted (Ctrl+C) or SIGTERM.

Example:
  keepalive run -c keepalive.yaml
  keepalive run -c keepalive.yaml --tokens /secrets/tokens.txt --log-format json`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	runCmd.Flags().String("tokens", "", "path to token file (overrides tokens_file)")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := loggerFromFlags(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tokensFile := cfg.TokensFile
	if override, _ := cmd.Flags().GetString("tokens"); override != "" {
		tokensFile = override
	}
	tokens, err := config.LoadTokens(tokensFile)
	if err != nil {
		return err
	}

	logger.Info("config loaded",
		"tokens", len(tokens),
		"ping_urls", len(cfg.PingURLs),
		"mode", cfg.Mode,
		"ping_interval", cfg.PingInterval.Duration().String(),
	)

	opts := append(config.BuildOptions(cfg), keepalive.WithLogger(logger))
	runner, err := keepalive.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runUntilDone(ctx, runner, tokens, logger.Warn)
}

// runUntilDone runs tokens and, once ctx is cancelled, waits at most
// shutdownTimeout for the runner to return.
func runUntilDone(ctx context.Context, runner *keepalive.Runner, tokens []string, warn func(string, ...any)) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- runner.Run(ctx, tokens)
	}()

	select {
	case err := <-errChan:
		return wrapRunError(err)

	case <-ctx.Done():
		select {
		case err := <-errChan:
			return wrapRunError(err)
		case <-time.After(shutdownTimeout):
			warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

func wrapRunError(err error) error {
	if err != nil {
		return fmt.Errorf("runner error: %w", err)
	}
	return nil
}
