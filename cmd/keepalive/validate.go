package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/keepalive/config"
)

// validateCmd validates a config file without contacting the service.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a keepalive configuration file without contacting the service.

This command parses the YAML, expands environment variables, validates all
fields and reads the token file. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config or token file is invalid (error details printed to stderr)

Example:
  keepalive validate -c keepalive.yaml
  keepalive validate -c keepalive.yaml --skip-tokens`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	validateCmd.Flags().Bool("skip-tokens", false, "do not read the token file")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	tokensLine := "skipped"
	if skip, _ := cmd.Flags().GetBool("skip-tokens"); !skip {
		tokens, err := config.LoadTokens(cfg.TokensFile)
		if err != nil {
			return err
		}
		tokensLine = fmt.Sprintf("%d in %s", len(tokens), cfg.TokensFile)
	}

	statusLine := "off"
	if cfg.StatusPort > 0 {
		statusLine = fmt.Sprintf(":%d", cfg.StatusPort)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Config is valid!\n")
	_, _ = fmt.Fprintf(out, "  Tokens:        %s\n", tokensLine)
	_, _ = fmt.Fprintf(out, "  Ping URLs:     %d\n", len(cfg.PingURLs))
	_, _ = fmt.Fprintf(out, "  Ping interval: %s\n", cfg.PingInterval.Duration())
	_, _ = fmt.Fprintf(out, "  Mode:          %s\n", modeSummary(cfg))
	_, _ = fmt.Fprintf(out, "  Status server: %s\n", statusLine)

	return nil
}

func modeSummary(cfg *config.Config) string {
	if cfg.Mode == config.ModePool {
		return fmt.Sprintf("pool (%d workers)", cfg.Concurrency)
	}
	return fmt.Sprintf("sequential (%s between tokens)", cfg.TokenDelay.Duration())
}
