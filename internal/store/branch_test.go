package store

import (
	"testing"

	"github.com/pennlinc/batchctl/internal/core"
)

func TestBranchNameRoundTrip(t *testing.T) {
	cases := []struct {
		mode   core.Mode
		pu     core.ProcessingUnit
		jobID  int64
		taskID int32
	}{
		{core.SingleLevel, core.ProcessingUnit{Subject: "sub-0001"}, 100, -1},
		{core.TwoLevel, core.ProcessingUnit{Subject: "sub-0001", Session: "ses-01"}, 200, 3},
	}

	for _, c := range cases {
		name := BranchName(c.jobID, c.taskID, c.pu)
		parsed, err := ParseBranchName(name, c.mode)
		if err != nil {
			t.Fatalf("ParseBranchName(%q): %v", name, err)
		}
		if parsed.JobID != c.jobID || parsed.TaskID != c.taskID || !parsed.PU.Equal(c.pu) {
			t.Fatalf("round trip mismatch for %q: got %+v", name, parsed)
		}
	}
}

func TestParseBranchNameToleratesLegacyScheme(t *testing.T) {
	name := "job-100-sub-0001"
	parsed, err := ParseBranchName(name, core.SingleLevel)
	if err != nil {
		t.Fatalf("ParseBranchName(legacy): %v", err)
	}
	if !parsed.Legacy || parsed.TaskID != -1 || parsed.JobID != 100 || parsed.PU.Subject != "sub-0001" {
		t.Fatalf("unexpected legacy parse: %+v", parsed)
	}
}

func TestMatchesPUIgnoresJobID(t *testing.T) {
	pu := core.ProcessingUnit{Subject: "sub-0003", Session: "ses-01"}
	// a previous attempt's branch, different job_id than current ledger
	name := BranchName(999, 1, pu)

	if !MatchesPU(name, pu, core.TwoLevel) {
		t.Fatal("MatchesPU must ignore job_id differences (§4.4)")
	}
}

func TestParseBranchNameRejectsGarbage(t *testing.T) {
	if _, err := ParseBranchName("not-a-branch", core.SingleLevel); err == nil {
		t.Fatal("expected an error for a non-result branch")
	}
}
