// Package reconcile finds and optionally fixes divergence between the
// filesystem's sandbox directories and the state repository's records.
package reconcile

import (
	"context"
	"os"
	"path/filepath"

	"github.com/agentworkd/orchestrator/internal/ids"
	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/agentworkd/orchestrator/internal/wolog"
)

// Layout names where sandbox directories live on disk under a single
// temp base: flat clone-sandbox directories directly beneath it, and
// worktree-sandbox directories nested under "repos/<repo_hash>/trees/"
// the way internal/worktree lays them out.
type Layout struct {
	WorktreeRoot string
}

// Result is the outcome of a reconciliation pass.
type Result struct {
	OrphanedWorktrees []string
	DanglingState     []string
	FixedOrphans      []string
	FixedDangling     []string
	FixErrors         []string
}

// diskDir is one sandbox directory found on disk, named by sandbox
// identifier, paired with its full path so a later fix pass doesn't have
// to re-derive flat vs. nested layout to remove it.
type diskDir struct {
	name string
	path string
}

// scanDiskDirs walks root for sandbox directories: flat entries directly
// under root (clone sandboxes), plus entries nested under
// "repos/*/trees/*" (worktree sandboxes). The "repos" directory itself
// is layout structure, never a candidate sandbox.
func scanDiskDirs(root string) ([]diskDir, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []diskDir
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "repos" {
			continue
		}
		dirs = append(dirs, diskDir{name: entry.Name(), path: filepath.Join(root, entry.Name())})
	}

	repoHashes, err := os.ReadDir(filepath.Join(root, "repos"))
	if err != nil {
		if os.IsNotExist(err) {
			return dirs, nil
		}
		return nil, err
	}
	for _, repoHash := range repoHashes {
		if !repoHash.IsDir() {
			continue
		}
		treesDir := filepath.Join(root, "repos", repoHash.Name(), "trees")
		trees, err := os.ReadDir(treesDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, tree := range trees {
			if !tree.IsDir() {
				continue
			}
			dirs = append(dirs, diskDir{name: tree.Name(), path: filepath.Join(treesDir, tree.Name())})
		}
	}
	return dirs, nil
}

// sandboxDirPath returns where wo's sandbox directory lives on disk,
// mirroring internal/sandbox's two layouts: flat for clone sandboxes,
// nested under "repos/<repo_hash>/trees/" for worktree sandboxes.
func sandboxDirPath(root string, wo staterepo.WorkOrder, sandboxType staterepo.SandboxType) string {
	if sandboxType == staterepo.SandboxWorktree {
		return filepath.Join(root, "repos", ids.RepoHash(wo.RepositoryURL), "trees", wo.SandboxIdentifier)
	}
	return filepath.Join(root, wo.SandboxIdentifier)
}

// FindOrphanedWorktrees returns the sandbox identifiers of directories on
// disk that are not present as a sandbox_identifier in repo.
func FindOrphanedWorktrees(ctx context.Context, layout Layout, repo staterepo.Repository) ([]string, error) {
	dirs, err := scanDiskDirs(layout.WorktreeRoot)
	if err != nil {
		return nil, err
	}

	known, err := knownSandboxIdentifiers(ctx, repo)
	if err != nil {
		return nil, err
	}

	var orphans []string
	for _, d := range dirs {
		if !known[d.name] {
			orphans = append(orphans, d.name)
		}
	}
	return orphans, nil
}

// FindDanglingState returns work-order ids in repo whose expected
// sandbox directory does not exist on disk. Only records with a
// worktree sandbox type are checked; other records are never reported.
func FindDanglingState(ctx context.Context, layout Layout, repo staterepo.Repository) ([]string, error) {
	records, err := repo.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	var dangling []string
	for _, rec := range records {
		if rec.Metadata.SandboxType != staterepo.SandboxWorktree {
			continue
		}
		dir := sandboxDirPath(layout.WorktreeRoot, rec.WorkOrder, rec.Metadata.SandboxType)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			dangling = append(dangling, rec.WorkOrder.WorkOrderID)
		}
	}
	return dangling, nil
}

// Reconcile computes both lists and, if fix is true, deletes orphaned
// directories and marks dangling work orders failed. A failure fixing
// one item is logged and does not block fixing the rest.
func Reconcile(ctx context.Context, layout Layout, repo staterepo.Repository, fix bool) (Result, error) {
	orphans, err := FindOrphanedWorktrees(ctx, layout, repo)
	if err != nil {
		return Result{}, err
	}
	dangling, err := FindDanglingState(ctx, layout, repo)
	if err != nil {
		return Result{}, err
	}

	result := Result{OrphanedWorktrees: orphans, DanglingState: dangling}
	if !fix {
		return result, nil
	}

	dirs, err := scanDiskDirs(layout.WorktreeRoot)
	if err != nil {
		return Result{}, err
	}
	pathByName := make(map[string]string, len(dirs))
	for _, d := range dirs {
		pathByName[d.name] = d.path
	}

	for _, name := range orphans {
		dir, ok := pathByName[name]
		if !ok {
			dir = filepath.Join(layout.WorktreeRoot, name)
		}
		if err := os.RemoveAll(dir); err != nil {
			wolog.Warning(ctx, "reconcile_fix_failed", "target", name, "error", err.Error())
			result.FixErrors = append(result.FixErrors, name+": "+err.Error())
			continue
		}
		wolog.Info(ctx, "reconcile_orphan_removed", "target", name)
		result.FixedOrphans = append(result.FixedOrphans, name)
	}

	errMsg := "work order state is dangling: expected sandbox directory was not found on disk"
	for _, id := range dangling {
		if err := repo.UpdateStatus(ctx, id, staterepo.StatusFailed, staterepo.StatusUpdate{ErrorMessage: &errMsg}); err != nil {
			wolog.Warning(ctx, "reconcile_fix_failed", "target", id, "error", err.Error())
			result.FixErrors = append(result.FixErrors, id+": "+err.Error())
			continue
		}
		wolog.Info(ctx, "reconcile_dangling_marked_failed", "target", id)
		result.FixedDangling = append(result.FixedDangling, id)
	}

	return result, nil
}

func knownSandboxIdentifiers(ctx context.Context, repo staterepo.Repository) (map[string]bool, error) {
	records, err := repo.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.WorkOrder.SandboxIdentifier] = true
	}
	return known, nil
}
