// Package finalize implements the Finalizer (C8, §4.8): a chunked,
// resumable merge of every result branch into the artifact store's
// mainline, grounded directly on bskiba-test-infra/prow/tide's pool/
// merge-batch action model (enumerate, chunk, merge-or-stop, retry next
// run with whatever is left).
package finalize

import (
	"context"
	"os"
	"strings"

	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/ledger"
	"github.com/pennlinc/batchctl/internal/obslog"
	"github.com/pennlinc/batchctl/internal/store"
)

// Options configures one Merge call.
type Options struct {
	// ChunkSize defaults to 20 (§4.8) when <= 0.
	ChunkSize int
	Logger    obslog.Logger
	// SkipArtifactVerification disables the post-merge clone-and-inspect
	// step; used by callers (and tests) that have no real working tree to
	// clone, trading the final verification for speed.
	SkipArtifactVerification bool
}

// Merge enforces §4.8's preconditions, delegates to the store adapter for
// the chunked merge itself, then verifies the post-merge artifact-per-PU
// invariant. The merge itself is not rolled back once it has succeeded, so
// step-4 discrepancies are reported as warnings, not errors.
func Merge(ctx context.Context, led *ledger.Ledger, mode core.Mode, st store.Adapter, opts Options) (store.MergeReport, []*core.ConsistencyWarning, error) {
	if opts.Logger == nil {
		opts.Logger = obslog.Noop
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 20
	}

	for _, pu := range led.PUs() {
		row, _ := led.Get(pu)
		if row.StateCategory != nil && row.StateCategory.Live() {
			return store.MergeReport{}, nil, core.NewPreconditionError(
				"cannot merge: %s is still %s; Reconcile must show zero pending/running/stalled PUs", pu, *row.StateCategory)
		}
	}

	branches, err := st.ListResultBranches(ctx)
	if err != nil {
		return store.MergeReport{}, nil, core.NewAdapterError("ListResultBranches", err)
	}

	for _, pu := range led.PUs() {
		row, _ := led.Get(pu)
		if !row.HasResults {
			continue
		}
		if !anyBranchMatches(branches, pu, mode) {
			return store.MergeReport{}, nil, core.NewPreconditionError(
				"%s has has_results=true but no matching result branch is visible", pu)
		}
	}

	report, err := st.MergeBranches(ctx, chunkSize)
	if err != nil {
		return report, nil, err
	}

	if opts.SkipArtifactVerification {
		return report, nil, nil
	}

	warnings, err := verifyArtifacts(ctx, st, led, report)
	if err != nil {
		return report, warnings, err
	}

	return report, warnings, nil
}

func anyBranchMatches(branches []string, pu core.ProcessingUnit, mode core.Mode) bool {
	for _, b := range branches {
		if store.MatchesPU(b, pu, mode) {
			return true
		}
	}
	return false
}

// verifyArtifacts clones mainline and checks that every PU with
// has_results=true has exactly one matching artifact file in the clone,
// per §4.8 step 4. It checks nothing when no branch was merged.
func verifyArtifacts(ctx context.Context, st store.Adapter, led *ledger.Ledger, report store.MergeReport) ([]*core.ConsistencyWarning, error) {
	if len(report.MergedBranches) == 0 {
		return nil, nil
	}

	dir, cleanup, err := st.CloneForSanityCheck(ctx)
	if err != nil {
		return nil, core.NewAdapterError("CloneForSanityCheck", err)
	}
	defer cleanup()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, core.NewAdapterError("reading sanity-check clone", err)
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}

	var warnings []*core.ConsistencyWarning
	for _, pu := range led.PUs() {
		row, ok := led.Get(pu)
		if !ok || !row.HasResults {
			continue
		}

		count := 0
		for _, name := range names {
			if artifactBelongsTo(name, pu) {
				count++
			}
		}
		if count != 1 {
			warnings = append(warnings, core.NewConsistencyWarning(&pu, "expected exactly one merged artifact, found %d", count))
		}
	}

	return warnings, nil
}

func artifactBelongsTo(filename string, pu core.ProcessingUnit) bool {
	if !strings.HasSuffix(filename, ".zip") {
		return false
	}
	if !strings.Contains(filename, pu.Subject) {
		return false
	}
	if pu.HasSession() && !strings.Contains(filename, pu.Session) {
		return false
	}
	return true
}
