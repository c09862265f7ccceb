package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentworkd/orchestrator/internal/config"
	"github.com/agentworkd/orchestrator/internal/wolog"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "agentworkd",
	Short:   "Orchestrates AI coding agent work orders",
	Long:    "agentworkd runs work orders through a sandboxed, multi-step agent workflow and exposes their status and logs over HTTP.",
	Version: version,
}

func init() {
	cobra.OnInitialize(initLogging)
}

// loadedConfig is populated by initLogging so subcommands can read it
// without each re-calling config.Load.
var loadedConfig config.Config

func initLogging() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	loadedConfig = cfg

	logger := wolog.New(cfg.Level())
	wolog.SetDefault(logger)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
