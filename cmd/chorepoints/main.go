package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorepoints/internal/config"
	"github.com/dukerupert/chorepoints/internal/logging"
)

const programName = "chorepoints"

var globalFlags = struct {
	configFile string
	envFile    string
	debug      bool
}{}

// cfg is loaded once in PersistentPreRunE and handed to each command.
var cfg *config.Config

func newLogger() *slog.Logger {
	level := cfg.LogLevel
	if globalFlags.debug {
		level = "debug"
	}
	logger := logging.New(os.Stdout, level, cfg.LogFormat)
	slog.SetDefault(logger)
	return logger
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Household chore and points service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(globalFlags.configFile, globalFlags.envFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = c
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&globalFlags.configFile, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.envFile, "env-file", ".env", "path to .env file, ignored when missing")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(spawnCommand())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
