package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentworkd/orchestrator/internal/cliexec"
	"github.com/agentworkd/orchestrator/internal/githubutil"
	"github.com/agentworkd/orchestrator/internal/httpapi"
	"github.com/agentworkd/orchestrator/internal/logbuffer"
	"github.com/agentworkd/orchestrator/internal/reconcile"
	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/agentworkd/orchestrator/internal/tasks"
	"github.com/agentworkd/orchestrator/internal/watcher"
	"github.com/agentworkd/orchestrator/internal/wolog"
	"github.com/agentworkd/orchestrator/internal/workflow"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and run work orders in the background",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "address to listen on")
}

func runServe(*cobra.Command, []string) error {
	cfg := loadedConfig

	repo, err := staterepo.New(cfg.StateRepoConfig())
	if err != nil {
		return fmt.Errorf("opening state repository: %w", err)
	}

	logs := logbuffer.New()
	logs.StartCleanupLoop()
	defer logs.Stop()

	logger := wolog.New(cfg.Level())
	logger.AddSink(logbuffer.Sink{Buffer: logs})
	wolog.SetDefault(logger)

	taskRegistry := tasks.New(repo)

	orch := &workflow.Orchestrator{
		Repo:     repo,
		Executor: workflow.ExecutorFunc(cliexec.ExecuteAsync),
		Loader:   cliexec.CommandLoader{CommandsDir: cfg.Paths.CommandsDir},
		Build: workflow.BuildOptions{
			CLIPath:         cfg.CLICommand.Path,
			Model:           cfg.CLICommand.Model,
			Verbose:         cfg.CLICommand.Verbose,
			MaxTurns:        cfg.CLICommand.MaxTurns,
			SkipPermissions: cfg.CLICommand.SkipPermissions,
			Timeout:         cfg.CLICommand.Timeout(),
			ArtifactsDir:    cfg.Paths.ArtifactsDir,
		},
		TempBase: cfg.Paths.TempDir,
	}

	handler := httpapi.NewHandler(httpapi.HandlerConfig{
		Repo:           repo,
		Tasks:          taskRegistry,
		Logs:           logs,
		Verifier:       githubutil.NewVerifier(cfg.GitHub.CLIPath),
		Orchestrator:   orch,
		WorktreeLayout: reconcile.Layout{WorktreeRoot: cfg.Paths.TempDir},
	})

	server, err := httpapi.NewServer(serveAddr, handler)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cmdWatcher, err := watcher.New(watcher.DefaultConfig(cfg.Paths.CommandsDir)); err != nil {
		wolog.Exception(ctx, "command_watcher_unavailable", err, "dir", cfg.Paths.CommandsDir)
	} else {
		if changed, err := cmdWatcher.Start(ctx); err != nil {
			wolog.Exception(ctx, "command_watcher_start_failed", err, "dir", cfg.Paths.CommandsDir)
		} else {
			defer func() { _ = cmdWatcher.Stop() }()
			go func() {
				for range changed {
					wolog.Info(ctx, "commands_dir_changed", "dir", cfg.Paths.CommandsDir)
				}
			}()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	fmt.Printf("agentworkd serving on port %d\n", server.Port())

	select {
	case sig := <-sigCh:
		fmt.Printf("received %s, shutting down\n", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	return server.Stop(shutdownCtx)
}
