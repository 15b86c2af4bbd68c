// Package fake provides an in-memory store.Adapter for tests.
package fake

import (
	"context"
	"sort"
	"sync"

	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/store"
)

// Adapter is an in-memory store.Adapter.
type Adapter struct {
	mu sync.Mutex

	// Branches is the current result-branch set.
	Branches map[string]bool

	// MergeErr, when non-nil, is returned (and consumed) by the next
	// MergeBranches call after merging MergeErrAfterChunks chunks.
	MergeErr            error
	MergeErrAfterChunks int

	PushCodeCalls int

	// CloneDir, when set, is returned by CloneForSanityCheck as the cloned
	// working tree; tests seed it with files to exercise the finalizer's
	// post-merge artifact check.
	CloneDir string
}

// New builds an empty fake Adapter.
func New() *Adapter {
	return &Adapter{Branches: map[string]bool{}}
}

var _ store.Adapter = (*Adapter)(nil)

// AddBranch registers a result branch, e.g. for a completed submission.
func (a *Adapter) AddBranch(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Branches[name] = true
}

func (a *Adapter) ListResultBranches(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, 0, len(a.Branches))
	for b := range a.Branches {
		out = append(out, b)
	}
	sort.Strings(out)
	return out, nil
}

func (a *Adapter) MergeBranches(ctx context.Context, chunkSize int) (store.MergeReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if chunkSize <= 0 {
		chunkSize = 20
	}

	branches := make([]string, 0, len(a.Branches))
	for b := range a.Branches {
		branches = append(branches, b)
	}
	sort.Strings(branches)

	var report store.MergeReport
	chunksDone := 0

	for start := 0; start < len(branches); start += chunkSize {
		end := start + chunkSize
		if end > len(branches) {
			end = len(branches)
		}
		chunk := branches[start:end]

		if a.MergeErr != nil && chunksDone == a.MergeErrAfterChunks {
			err := a.MergeErr
			a.MergeErr = nil
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
			delete(a.Branches, b)
		}
		chunksDone++
	}

	return report, nil
}

func (a *Adapter) CloneForSanityCheck(ctx context.Context) (string, func(), error) {
	if a.CloneDir != "" {
		return a.CloneDir, func() {}, nil
	}
	return "/tmp/fake-sanity-clone", func() {}, nil
}

func (a *Adapter) PushCode(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.PushCodeCalls++
	return nil
}
