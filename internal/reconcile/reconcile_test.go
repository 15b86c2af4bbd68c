package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pennlinc/batchctl/internal/config"
	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/ledger"
	"github.com/pennlinc/batchctl/internal/scheduler"
	fakesched "github.com/pennlinc/batchctl/internal/scheduler/fake"
	"github.com/pennlinc/batchctl/internal/store"
	fakestore "github.com/pennlinc/batchctl/internal/store/fake"
)

func subjectOnlyConfig() *config.Project {
	return &config.Project{ProcessingLevel: "subject"}
}

func writeStdout(t *testing.T, dir string, jobID int64, taskID int32, pu core.ProcessingUnit, stdout string) {
	t.Helper()
	base := "job-" + intToStr(jobID)
	if taskID >= 0 {
		base += "-" + intToStr(int64(taskID))
	}
	base += "-" + pu.Subject
	if pu.Session != "" {
		base += "-" + pu.Session
	}
	if err := os.WriteFile(filepath.Join(dir, base+".out"), []byte(stdout), 0o644); err != nil {
		t.Fatalf("writing stdout: %v", err)
	}
}

func intToStr(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestReconcileBranchExistsMeansSuccess(t *testing.T) {
	pu := core.ProcessingUnit{Subject: "sub-0001"}
	led := ledger.New("/tmp/ledger.csv")
	row := ledger.NewRow(pu)
	row.MarkSubmitted(100, -1)
	led.UpsertRow(row)

	sched := fakesched.New()
	st := fakestore.New()
	st.AddBranch(store.BranchName(100, -1, pu))

	logDir := t.TempDir()
	writeStdout(t, logDir, 100, -1, pu, "starting\nSUCCESS\n")

	newLedger, summary, err := Reconcile(context.Background(), []core.ProcessingUnit{pu}, led, subjectOnlyConfig(), sched, st, Options{LogDir: logDir})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, _ := newLedger.Get(pu)
	if !got.HasResults {
		t.Fatal("expected has_results=true once a matching branch exists")
	}
	if got.IsFailed == nil || *got.IsFailed {
		t.Fatal("expected is_failed=false on success")
	}
	if summary.Succeeded != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestReconcileRunningJobStaysRunning(t *testing.T) {
	pu := core.ProcessingUnit{Subject: "sub-0001"}
	led := ledger.New("/tmp/ledger.csv")
	row := ledger.NewRow(pu)
	row.MarkSubmitted(100, -1)
	led.UpsertRow(row)

	sched := fakesched.New()
	sched.Live[100] = scheduler.LiveJobInfo{StateCategory: core.StateRunning, StateCode: "R"}

	st := fakestore.New()

	newLedger, summary, err := Reconcile(context.Background(), []core.ProcessingUnit{pu}, led, subjectOnlyConfig(), sched, st, Options{LogDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, _ := newLedger.Get(pu)
	if got.HasResults {
		t.Fatal("a running job must not be marked has_results")
	}
	if got.StateCategory == nil || *got.StateCategory != core.StateRunning {
		t.Fatalf("expected state_category=running, got %+v", got.StateCategory)
	}
	if summary.Running != 1 {
		t.Fatalf("expected 1 running, got %+v", summary)
	}
}

func TestReconcileFailureCapturesAlertMessage(t *testing.T) {
	pu := core.ProcessingUnit{Subject: "sub-0003", Session: "ses-01"}
	led := ledger.New("/tmp/ledger.csv")
	row := ledger.NewRow(pu)
	row.MarkSubmitted(300, -1)
	led.UpsertRow(row)

	cfg := &config.Project{ProcessingLevel: "session"}
	cfg.AlertLogMessages.Stdout = []string{"Excessive topologic defect encountered"}

	sched := fakesched.New()
	st := fakestore.New()

	logDir := t.TempDir()
	writeStdout(t, logDir, 300, -1, pu, "booting\nExcessive topologic defect encountered\n")

	newLedger, summary, err := Reconcile(context.Background(), []core.ProcessingUnit{pu}, led, cfg, sched, st, Options{LogDir: logDir})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, _ := newLedger.Get(pu)
	if got.IsFailed == nil || !*got.IsFailed {
		t.Fatal("expected is_failed=true: job left the queue with no branch")
	}
	if got.AlertMessage == nil || *got.AlertMessage != "stdout: Excessive topologic defect encountered" {
		t.Fatalf("unexpected alert_message: %v", got.AlertMessage)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", summary)
	}
}

func TestReconcileResubmissionOverridesPriorFailure(t *testing.T) {
	pu := core.ProcessingUnit{Subject: "sub-0003", Session: "ses-01"}
	led := ledger.New("/tmp/ledger.csv")
	row := ledger.NewRow(pu)
	row.MarkSubmitted(300, -1)
	isFailed := true
	row.IsFailed = &isFailed
	led.UpsertRow(row)

	// resubmission: a later MarkSubmitted overrides job_id (invariant 6).
	row2, _ := led.Get(pu)
	row2.MarkSubmitted(301, -1)
	led.UpsertRow(row2)

	sched := fakesched.New()
	st := fakestore.New()
	st.AddBranch(store.BranchName(301, -1, pu))

	logDir := t.TempDir()
	writeStdout(t, logDir, 301, -1, pu, "SUCCESS\n")

	newLedger, _, err := Reconcile(context.Background(), []core.ProcessingUnit{pu}, led, &config.Project{ProcessingLevel: "session"}, sched, st, Options{LogDir: logDir})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, _ := newLedger.Get(pu)
	if got.JobID != 301 {
		t.Fatalf("expected job_id=301 after resubmission, got %d", got.JobID)
	}
	if !got.HasResults || got.IsFailed == nil || *got.IsFailed {
		t.Fatalf("expected success on retry, got %+v", got)
	}
}

func TestReconcileOrphanedJobIsWarnedNotClaimed(t *testing.T) {
	pu := core.ProcessingUnit{Subject: "sub-0001"}
	led := ledger.New("/tmp/ledger.csv")
	row := ledger.NewRow(pu)
	led.UpsertRow(row) // not submitted

	sched := fakesched.New()
	sched.Live[999] = scheduler.LiveJobInfo{StateCategory: core.StateRunning, StateCode: "R"}

	st := fakestore.New()

	newLedger, summary, err := Reconcile(context.Background(), []core.ProcessingUnit{pu}, led, subjectOnlyConfig(), sched, st, Options{LogDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, _ := newLedger.Get(pu)
	if got.Submitted {
		t.Fatal("an unsubmitted row must never be auto-claimed by an orphan job id")
	}
	if len(summary.ConsistencyWarnings) != 1 {
		t.Fatalf("expected one consistency warning for the orphaned job id, got %d", len(summary.ConsistencyWarnings))
	}
}

func TestReconcileIsDeterministicAcrossRuns(t *testing.T) {
	pu := core.ProcessingUnit{Subject: "sub-0001"}
	led := ledger.New("/tmp/ledger.csv")
	row := ledger.NewRow(pu)
	row.MarkSubmitted(100, -1)
	led.UpsertRow(row)

	sched := fakesched.New()
	sched.Live[100] = scheduler.LiveJobInfo{StateCategory: core.StatePending, StateCode: "PD"}
	st := fakestore.New()

	l1, s1, err := Reconcile(context.Background(), []core.ProcessingUnit{pu}, led, subjectOnlyConfig(), sched, st, Options{LogDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	l2, s2, err := Reconcile(context.Background(), []core.ProcessingUnit{pu}, led, subjectOnlyConfig(), sched, st, Options{LogDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	r1, _ := l1.Get(pu)
	r2, _ := l2.Get(pu)
	if r1.Submitted != r2.Submitted || r1.JobID != r2.JobID || *r1.StateCategory != *r2.StateCategory {
		t.Fatal("reconciliation over identical inputs must be deterministic")
	}
	if s1.Pending != s2.Pending {
		t.Fatal("summary counts must be deterministic")
	}
}
