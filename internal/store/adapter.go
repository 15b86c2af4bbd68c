// Package store defines the Artifact Store Adapter contract (C4, §4.4):
// listing result branches, testing branch existence, chunked merging into
// mainline, and the clone/push operations used by the finalizer and the
// sync-code collaborator.
package store

import "context"

// MergeReport summarizes one Merge call (§4.8).
type MergeReport struct {
	// Chunks is the list of branch-name groups merged, in merge order.
	Chunks [][]string
	// MergedBranches is the flattened, deleted-after-merge branch list.
	MergedBranches []string
	// Failed, if non-empty, names the chunk that failed and stopped the
	// merge; branches in Failed and all subsequent chunks remain unmerged.
	Failed []string
}

// Adapter is the Artifact Store Adapter contract (§4.4, §6).
type Adapter interface {
	// ListResultBranches returns every branch in the result-branch
	// namespace. Cheap: the scheme expects O(branches) text output of
	// modest size; implementations must not fetch branch contents.
	ListResultBranches(ctx context.Context) ([]string, error)

	// MergeBranches merges every result branch into mainline in chunks of
	// chunkSize, to keep each merge operation bounded (§4.8).
	MergeBranches(ctx context.Context, chunkSize int) (MergeReport, error)

	// CloneForSanityCheck produces a throwaway local clone for validating
	// mainline state after a merge.
	CloneForSanityCheck(ctx context.Context) (dir string, cleanup func(), err error)

	// PushCode pushes the project's code tree (the sync-code collaborator,
	// out of the core's scope beyond this one call).
	PushCode(ctx context.Context) error
}
