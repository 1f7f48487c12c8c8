// Package main is the fleetctl CLI entry point. Command implementations are
// split across run.go, status.go and resume.go; this file holds the root
// command, global flags, and logger bootstrap.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fleetctl/internal/logging"
)

var (
	verbose    bool
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fleetctl",
	Short: "Build-and-verification orchestrator for AI-generated microservice fleets",
	Long: `fleetctl drives a PRD through decomposition, parallel builder dispatch,
integration health checks, a layered quality gate, and a bounded fix-pass
convergence loop, emitting a scored audit report at the end of a run.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("fleetctl: failed to initialize logger: %w", err)
		}
		logging.Init(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "fleetctl.yaml", "Path to the run configuration file")

	rootCmd.AddCommand(runCmd, statusCmd, resumeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
