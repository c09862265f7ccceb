package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentworkd/orchestrator/internal/reconcile"
	"github.com/agentworkd/orchestrator/internal/staterepo"
)

var reconcileFix bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Find orphaned worktrees and dangling state, once, and exit",
	RunE:  runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().BoolVar(&reconcileFix, "fix", false, "remove orphaned worktrees and mark dangling work orders failed")
}

func runReconcile(*cobra.Command, []string) error {
	cfg := loadedConfig

	repo, err := staterepo.New(cfg.StateRepoConfig())
	if err != nil {
		return fmt.Errorf("opening state repository: %w", err)
	}

	layout := reconcile.Layout{WorktreeRoot: cfg.Paths.TempDir}
	result, err := reconcile.Reconcile(context.Background(), layout, repo, reconcileFix)
	if err != nil {
		return fmt.Errorf("reconciling: %w", err)
	}

	fmt.Printf("orphaned worktrees: %d\n", len(result.OrphanedWorktrees))
	fmt.Printf("dangling state: %d\n", len(result.DanglingState))
	if reconcileFix {
		fmt.Printf("fixed orphans: %d\n", len(result.FixedOrphans))
		fmt.Printf("fixed dangling: %d\n", len(result.FixedDangling))
		if len(result.FixErrors) > 0 {
			fmt.Printf("fix errors: %d\n", len(result.FixErrors))
			for _, e := range result.FixErrors {
				fmt.Println("  " + e)
			}
		}
	}
	return nil
}
