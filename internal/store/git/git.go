// Package git implements the Artifact Store Adapter (§4.4) over a
// git-annex/DataLad-style branch namespace, shelling out to the git CLI the
// same way internal/scheduler/slurm shells out to Slurm, using
// kubeshop/testkube's process helper for subprocess wrapping.
package git

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/kubeshop/testkube/pkg/process"
	"github.com/pkg/errors"

	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/store"
)

// Config configures the git-backed adapter.
type Config struct {
	// RepoDir is the path to the local clone whose mainline the finalizer
	// merges into.
	RepoDir string
	// RemoteName is the remote the branches live on, e.g. "origin".
	RemoteName string
	// MainlineBranch is the branch chunks are merged into, e.g. "main".
	MainlineBranch string
	// BranchPrefix is the result-branch namespace prefix ("job-").
	BranchPrefix string
}

// Adapter is the git-backed store.Adapter implementation.
type Adapter struct {
	cfg Config
}

// New builds a git-backed Adapter.
func New(cfg Config) *Adapter {
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = "job-"
	}
	if cfg.MainlineBranch == "" {
		cfg.MainlineBranch = "main"
	}
	return &Adapter{cfg: cfg}
}

var _ store.Adapter = (*Adapter)(nil)

func (a *Adapter) git(args ...string) (string, error) {
	full := append([]string{"-C", a.cfg.RepoDir}, args...)
	out, err := process.Execute("git", full...)
	return string(out), err
}

// ListResultBranches implements store.Adapter. It lists remote branches
// only (cheap text output), never fetching branch contents (§4.4).
func (a *Adapter) ListResultBranches(ctx context.Context) ([]string, error) {
	out, err := a.git("branch", "--list", "--remotes", a.cfg.RemoteName+"/"+a.cfg.BranchPrefix+"*", "--format=%(refname:short)")
	if err != nil {
		return nil, core.NewAdapterError("git branch --list", err)
	}

	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name := strings.TrimPrefix(line, a.cfg.RemoteName+"/")
		branches = append(branches, name)
	}

	sort.Strings(branches)
	return branches, nil
}

// MergeBranches implements store.Adapter (§4.8): chunked merge in
// lexicographic branch-name order, stopping at the first failing chunk and
// deleting only branches belonging to chunks that merged successfully.
func (a *Adapter) MergeBranches(ctx context.Context, chunkSize int) (store.MergeReport, error) {
	if chunkSize <= 0 {
		chunkSize = 20
	}

	branches, err := a.ListResultBranches(ctx)
	if err != nil {
		return store.MergeReport{}, err
	}

	if _, err := a.git("checkout", a.cfg.MainlineBranch); err != nil {
		return store.MergeReport{}, core.NewAdapterError("git checkout", err)
	}

	var report store.MergeReport

	for start := 0; start < len(branches); start += chunkSize {
		end := start + chunkSize
		if end > len(branches) {
			end = len(branches)
		}
		chunk := branches[start:end]

		if err := a.mergeChunk(chunk); err != nil {
			report.Failed = chunk
			return report, &core.PartialMergeFailure{
				MergedChunks: len(report.Chunks),
				TotalChunks:  (len(branches) + chunkSize - 1) / chunkSize,
				Err:          err,
			}
		}

		report.Chunks = append(report.Chunks, chunk)
		report.MergedBranches = append(report.MergedBranches, chunk...)

		for _, b := range chunk {
			// delete merged branches only after a successful chunk.
			if _, err := a.git("push", a.cfg.RemoteName, "--delete", b); err != nil {
				return report, core.NewAdapterError("git push --delete", errors.Wrapf(err, "branch %s", b))
			}
		}
	}

	return report, nil
}

func (a *Adapter) mergeChunk(chunk []string) error {
	message := "merge: " + strings.Join(chunk, ", ")

	refs := make([]string, len(chunk))
	for i, b := range chunk {
		refs[i] = a.cfg.RemoteName + "/" + b
	}

	args := append([]string{"merge", "--no-ff", "-m", message}, refs...)
	if _, err := a.git(args...); err != nil {
		return core.NewAdapterError("git merge", err)
	}

	if _, err := a.git("push", a.cfg.RemoteName, a.cfg.MainlineBranch); err != nil {
		return core.NewAdapterError("git push", err)
	}

	return nil
}

// CloneForSanityCheck implements store.Adapter: a throwaway clone in a
// fresh temp directory, named with a uuid suffix the same way the slurm
// adapter names scratch submission scripts.
func (a *Adapter) CloneForSanityCheck(ctx context.Context) (string, func(), error) {
	dir, err := os.MkdirTemp("", "sanity-"+uuid.NewString()[:8])
	if err != nil {
		return "", nil, errors.Wrap(err, "creating sanity-check directory")
	}

	out, err := process.Execute("git", "clone", "--branch", a.cfg.MainlineBranch, a.cfg.RepoDir, dir)
	if err != nil {
		os.RemoveAll(dir)
		return "", nil, core.NewAdapterError("git clone", errors.New(out))
	}

	cleanup := func() { os.RemoveAll(dir) }
	return dir, cleanup, nil
}

// PushCode implements store.Adapter: pushes the project's code tree
// (sync-code collaborator).
func (a *Adapter) PushCode(ctx context.Context) error {
	if _, err := a.git("push", a.cfg.RemoteName, "HEAD:"+a.cfg.MainlineBranch); err != nil {
		return core.NewAdapterError("git push", err)
	}
	return nil
}
