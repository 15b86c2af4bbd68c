// Package reconcile implements the Reconciler (C6, §4.6): folding the Job
// Ledger, the scheduler's live queue view, and the artifact store's branch
// namespace into an updated ledger and a status summary. Reconcile is pure
// with respect to the cluster — it only reads external state — following
// the controllers/common.Reconcile shape (acquire current state, fold into
// new state, single return point), generalized from a single-CR reconcile
// into an all-PU fold.
package reconcile

import (
	"context"
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/r3labs/diff/v3"

	"github.com/pennlinc/batchctl/internal/classifier"
	"github.com/pennlinc/batchctl/internal/config"
	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/ledger"
	"github.com/pennlinc/batchctl/internal/obslog"
	"github.com/pennlinc/batchctl/internal/scheduler"
	"github.com/pennlinc/batchctl/internal/store"
)

// Options configures one Reconcile call.
type Options struct {
	Owner scheduler.Owner
	// LogDir is where the Log Classifier resolves stdout/stderr paths.
	LogDir string
	// Concurrency bounds the worker pool used for the embarrassingly
	// parallel, side-effect-free per-PU work (§5): branch-existence
	// checks and log scans. Ordering of the final ledger writes is
	// unaffected by this value.
	Concurrency int
	// Logger receives progress/warning messages. Defaults to a no-op.
	Logger obslog.Logger
}

// Summary is the per-reconciliation status report (§4.6).
type Summary struct {
	ToComplete int
	Submitted  int
	Succeeded  int
	Pending    int
	Running    int
	Stalled    int
	Failed     int

	// FailureHistogram is keyed by alert_message; within "no alert found"
	// entries it is further keyed by the PostMortem label.
	FailureHistogram map[string]int

	// ConsistencyWarnings accumulates §7 ConsistencyWarning findings
	// (e.g. branch exists but last_stdout_line != SUCCESS, or an orphan
	// job ID observed in the queue).
	ConsistencyWarnings []*core.ConsistencyWarning

	// RowDiff is the set of field-level changes between the previous and
	// the new ledger (empty when nothing changed). The "status" command
	// does not print it.
	RowDiff diff.Changelog
}

// precomputed is the per-PU result of the embarrassingly parallel scan
// phase (§5), merged back by the single-threaded fold in Inclusion-List
// order.
type precomputed struct {
	hasResults     bool
	classifyResult classifier.Result
	classifyErr    error
	postMortem     string
	postMortemErr  error
}

// Reconcile implements §4.6's algorithm exactly, including its ordering
// contract. inclusionList fixes the row order and set (invariant 5); old
// is the ledger loaded at command entry.
func Reconcile(ctx context.Context, inclusionList []core.ProcessingUnit, old *ledger.Ledger, cfg *config.Project, sched scheduler.Adapter, st store.Adapter, opts Options) (*ledger.Ledger, Summary, error) {
	if opts.Logger == nil {
		opts.Logger = obslog.Noop
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	live, err := sched.PollAll(ctx, opts.Owner)
	if err != nil {
		return nil, Summary{}, core.NewAdapterError("PollAll", err)
	}

	branchList, err := st.ListResultBranches(ctx)
	if err != nil {
		return nil, Summary{}, core.NewAdapterError("ListResultBranches", err)
	}
	branchSet := make(map[string]bool, len(branchList))
	for _, b := range branchList {
		branchSet[b] = true
	}

	mode := cfg.Mode()
	catalog := cfg.AlertCatalog()

	scratch := runParallelScan(ctx, inclusionList, old, branchSet, mode, live, sched, catalog, opts)

	newLedger := ledger.New(old.Path())
	summary := Summary{ToComplete: len(inclusionList), FailureHistogram: map[string]int{}}

	claimedJobIDs := make(map[int64]bool)

	for _, pu := range inclusionList {
		row, ok := old.Get(pu)
		if !ok {
			row = ledger.NewRow(pu)
		}
		pre := scratch[pu.Key()]

		if row.Submitted {
			claimedJobIDs[row.JobID] = true
		}

		applyRow(&row, pre, live, &summary, opts.Logger)

		newLedger.UpsertRow(row)
	}

	// §4.7 step 5 / §4.6: job IDs present in the live queue but not
	// referenced by any ledger row are orphaned submissions, logged as a
	// ConsistencyWarning but never auto-claimed.
	orphanIDs := make([]int64, 0)
	for jobID := range live {
		if !claimedJobIDs[jobID] {
			orphanIDs = append(orphanIDs, jobID)
		}
	}
	sort.Slice(orphanIDs, func(i, j int) bool { return orphanIDs[i] < orphanIDs[j] })
	for _, jobID := range orphanIDs {
		w := core.NewConsistencyWarning(nil, "orphaned job id %d observed in live queue, not recorded by any ledger row", jobID)
		summary.ConsistencyWarnings = append(summary.ConsistencyWarnings, w)
		opts.Logger.Warn("orphaned job id", "job_id", jobID)
	}

	changelog, err := diff.Diff(old.Rows(), newLedger.Rows())
	if err == nil {
		summary.RowDiff = changelog
	}

	return newLedger, summary, nil
}

// applyRow implements §4.6 steps 1-4 for a single row, in order.
func applyRow(row *ledger.Row, pre precomputed, live map[int64]scheduler.LiveJobInfo, summary *Summary, log obslog.Logger) {
	pu := row.PU

	// step 1: untouched rows.
	if !row.Submitted {
		return
	}
	summary.Submitted++

	// step 2: branch exists -> success, counted only once (invariant 2,
	// §4.6 "no counter double-counts").
	if pre.hasResults {
		row.HasResults = true
		row.IsFailed = boolPtr(false)
		row.ClearLiveState()

		if pre.classifyErr == nil {
			applyClassifierResult(row, pre.classifyResult)
			if pre.classifyResult.LastStdoutLine != "" && !pre.classifyResult.SawSuccessMarker {
				w := core.NewConsistencyWarning(&pu, "branch exists but last_stdout_line is %q, not SUCCESS", pre.classifyResult.LastStdoutLine)
				summary.ConsistencyWarnings = append(summary.ConsistencyWarnings, w)
			}
		}

		summary.Succeeded++
		return
	}

	info, inQueue := live[row.JobID]

	// step 3: in queue.
	if inQueue {
		copyLiveInfo(row, info)
		row.HasResults = false
		row.IsFailed = boolPtr(false)

		if info.StateCategory == core.StateRunning && pre.classifyErr == nil {
			applyClassifierResult(row, pre.classifyResult)
		} else {
			row.AlertMessage = nil
		}

		switch info.StateCategory {
		case core.StatePending:
			summary.Pending++
		case core.StateRunning:
			summary.Running++
		case core.StateStalled:
			summary.Stalled++
		}
		return
	}

	// step 4: submitted, not in queue, no branch -> failed.
	row.IsFailed = boolPtr(true)
	row.ClearLiveState()

	if pre.classifyErr == nil {
		applyClassifierResult(row, pre.classifyResult)
	}

	label := pre.postMortem
	if pre.postMortemErr != nil || label == "" {
		label = "unknown"
	}

	key := row.AlertMessage
	histKey := classifier.NoAlertFound
	if key != nil {
		histKey = *key
	} else {
		histKey = classifier.NoAlertFound + ": " + label
	}
	summary.FailureHistogram[histKey]++
	summary.Failed++

	log.Info("classified as failed", "pu", pu.String(), "job_id", row.JobID, "postmortem", label)
}

func applyClassifierResult(row *ledger.Row, r classifier.Result) {
	if r.NoLogsYet {
		row.ClearLogState()
		return
	}
	if r.AlertMessage != "" {
		row.AlertMessage = strPtrLocal(r.AlertMessage)
	} else {
		row.AlertMessage = nil
	}
	if r.LastStdoutLine != "" {
		row.LastStdoutLine = strPtrLocal(r.LastStdoutLine)
	}
}

func copyLiveInfo(row *ledger.Row, info scheduler.LiveJobInfo) {
	cat := info.StateCategory
	row.StateCategory = &cat
	code := info.StateCode
	row.StateCode = &code
	rt := info.Runtime
	row.Runtime = &rt
	tl := info.TimeLimit
	row.TimeLimit = &tl
	nodes := info.Nodes
	row.Nodes = &nodes
	cpus := info.CPUs
	row.CPUs = &cpus
	partition := info.Partition
	row.Partition = &partition
	name := info.Name
	row.Name = &name
}

// runParallelScan performs the embarrassingly parallel, side-effect-free
// per-PU work (branch-existence test, log scan, best-effort post-mortem)
// with a bounded worker pool (§5), storing results in a concurrent map so
// the single-threaded fold can merge them back in Inclusion-List order.
func runParallelScan(ctx context.Context, inclusionList []core.ProcessingUnit, old *ledger.Ledger, branchSet map[string]bool, mode core.Mode, live map[int64]scheduler.LiveJobInfo, sched scheduler.Adapter, catalog []config.AlertEntry, opts Options) map[string]precomputed {
	results := cmap.New()

	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup

	for _, pu := range inclusionList {
		pu := pu
		row, ok := old.Get(pu)
		if !ok || !row.Submitted {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			var pre precomputed
			pre.hasResults = branchExists(branchSet, mode, pu)

			if !pre.hasResults {
				if _, inQueue := live[row.JobID]; inQueue {
					info := live[row.JobID]
					if info.StateCategory != core.StateRunning {
						results.Set(pu.Key(), pre)
						return
					}
				}
			}

			paths := classifier.ResolveLogPaths(opts.LogDir, pu, row.JobID, row.TaskID)
			result, err := classifier.Classify(paths, catalog)
			pre.classifyResult = result
			pre.classifyErr = err

			if !pre.hasResults {
				if _, inQueue := live[row.JobID]; !inQueue {
					pm, pmErr := sched.PostMortem(ctx, row.JobID)
					pre.postMortem = pm
					pre.postMortemErr = pmErr
				}
			}

			results.Set(pu.Key(), pre)
		}()
	}

	wg.Wait()

	out := make(map[string]precomputed, results.Count())
	for item := range results.IterBuffered() {
		out[item.Key] = item.Val.(precomputed)
	}
	return out
}

func branchExists(branchSet map[string]bool, mode core.Mode, pu core.ProcessingUnit) bool {
	for name := range branchSet {
		if store.MatchesPU(name, pu, mode) {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool         { return &b }
func strPtrLocal(s string) *string { return &s }
