package finalize

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/ledger"
	"github.com/pennlinc/batchctl/internal/store"
	fakestore "github.com/pennlinc/batchctl/internal/store/fake"
)

func TestMergeRefusesWhilePUsAreLive(t *testing.T) {
	running := core.StateRunning
	led := ledger.New("/tmp/ledger.csv")
	row := ledger.NewRow(core.ProcessingUnit{Subject: "sub-0001"})
	row.MarkSubmitted(100, -1)
	row.StateCategory = &running
	led.UpsertRow(row)

	st := fakestore.New()
	_, _, err := Merge(context.Background(), led, core.SingleLevel, st, Options{})
	if err == nil {
		t.Fatal("expected a PreconditionError while a PU is still running")
	}
}

func TestMergeRefusesWhenHasResultsButNoBranch(t *testing.T) {
	led := ledger.New("/tmp/ledger.csv")
	row := ledger.NewRow(core.ProcessingUnit{Subject: "sub-0001"})
	row.MarkSubmitted(100, -1)
	row.HasResults = true
	led.UpsertRow(row)

	st := fakestore.New() // no branches registered

	_, _, err := Merge(context.Background(), led, core.SingleLevel, st, Options{})
	if err == nil {
		t.Fatal("expected a PreconditionError: has_results=true with no visible branch")
	}
}

func TestMergeConsumesBranchesInChunks(t *testing.T) {
	pu := core.ProcessingUnit{Subject: "sub-0001"}
	led := ledger.New("/tmp/ledger.csv")
	row := ledger.NewRow(pu)
	row.MarkSubmitted(100, -1)
	row.HasResults = true
	led.UpsertRow(row)

	st := fakestore.New()
	st.AddBranch(store.BranchName(100, -1, pu))

	report, _, err := Merge(context.Background(), led, core.SingleLevel, st, Options{ChunkSize: 20, SkipArtifactVerification: true})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(report.MergedBranches) != 1 {
		t.Fatalf("expected one merged branch, got %+v", report)
	}

	remaining, _ := st.ListResultBranches(context.Background())
	if len(remaining) != 0 {
		t.Fatalf("expected branches to be deleted after merge, got %v", remaining)
	}
}

func TestMergeStopsOnPartialFailureAndRetainsRemainder(t *testing.T) {
	led := ledger.New("/tmp/ledger.csv")
	for i, name := range []string{"sub-0001", "sub-0002", "sub-0003"} {
		pu := core.ProcessingUnit{Subject: name}
		row := ledger.NewRow(pu)
		row.MarkSubmitted(int64(100+i), -1)
		row.HasResults = true
		led.UpsertRow(row)
	}

	st := fakestore.New()
	for i, name := range []string{"sub-0001", "sub-0002", "sub-0003"} {
		st.AddBranch(store.BranchName(int64(100+i), -1, core.ProcessingUnit{Subject: name}))
	}
	st.MergeErr = context.DeadlineExceeded
	st.MergeErrAfterChunks = 1

	_, _, err := Merge(context.Background(), led, core.SingleLevel, st, Options{ChunkSize: 1, SkipArtifactVerification: true})
	if err == nil {
		t.Fatal("expected a partial merge failure")
	}
	if _, ok := err.(*core.PartialMergeFailure); !ok {
		t.Fatalf("expected *core.PartialMergeFailure, got %T", err)
	}

	remaining, _ := st.ListResultBranches(context.Background())
	if len(remaining) != 2 {
		t.Fatalf("expected 2 branches retained for retry, got %v", remaining)
	}
}

func TestMergeVerifiesOneArtifactPerSucceededPU(t *testing.T) {
	pu := core.ProcessingUnit{Subject: "sub-0001"}
	led := ledger.New("/tmp/ledger.csv")
	row := ledger.NewRow(pu)
	row.MarkSubmitted(100, -1)
	row.HasResults = true
	led.UpsertRow(row)

	st := fakestore.New()
	st.AddBranch(store.BranchName(100, -1, pu))

	cloneDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(cloneDir, "sub-0001_results.zip"), []byte("zip"), 0o644); err != nil {
		t.Fatalf("seeding clone dir: %v", err)
	}
	st.CloneDir = cloneDir

	report, warnings, err := Merge(context.Background(), led, core.SingleLevel, st, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(report.MergedBranches) != 1 {
		t.Fatalf("expected one merged branch, got %+v", report)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no artifact-count warnings, got %v", warnings)
	}
}
