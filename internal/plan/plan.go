// Package plan implements the Submission Planner (C7, §4.7): deciding which
// Processing Units to (re)submit given a mode, an optional explicit PU list,
// and a resubmit policy, then writing the scheduler's receipts back into the
// ledger. Candidate-inclusion rules for the policy-driven modes are
// expressed as boolean predicates and evaluated with govaluate, in a
// gate-then-act shape: check preconditions, then decide, mirrored here by
// contention-check-then-candidate-select.
package plan

import (
	"context"

	"github.com/Knetic/govaluate"
	"github.com/pkg/errors"

	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/ledger"
	"github.com/pennlinc/batchctl/internal/scheduler"
)

// Mode selects the candidate-selection strategy (§4.7).
type Mode int

const (
	OneJob Mode = iota
	CountN
	All
	Explicit
	Resubmit
)

// ResubmitPolicy names which terminal/live states are eligible for
// automatic resubmission. Stalled is deliberately not representable here
// (§4.7: "stalled is intentionally not supported automatically").
type ResubmitPolicy struct {
	Failed  bool
	Pending bool
}

// Request is one planning call's input.
type Request struct {
	Mode Mode
	// Count is used by CountN.
	Count int
	// PUs is the explicit target list for Explicit, and an optional
	// narrowing override for Resubmit (resubmit only these, still subject
	// to Policy and the has_results refusal, except that a named stalled PU
	// is force-submitted regardless of Policy).
	PUs []core.ProcessingUnit
	// Policy is consulted by All (its "pending" clause) and by Resubmit.
	Policy ResubmitPolicy
}

// Result is a planning call's output: the ordered candidate set plus any
// per-PU warnings (§4.7 Edge cases, Explicit).
type Result struct {
	Candidates []core.ProcessingUnit
	Warnings   []string
}

// allPredicate and resubmitPredicate are evaluated per row via govaluate;
// parameters are supplied per call from ledger row state and Policy.
const (
	allPredicate      = "(!submitted) || is_failed || (pending_allowed && state_category == \"pending\")"
	resubmitPredicate = "(failed_allowed && is_failed) || (pending_allowed && state_category == \"pending\")"
)

// Plan computes the candidate set for req against led (the post-Reconcile
// ledger), honoring the contention rule (step 1) and the has_results
// refusal (step 3).
func Plan(led *ledger.Ledger, req Request) (Result, error) {
	liveSet := collectLive(led)

	switch req.Mode {
	case OneJob, CountN, All:
		if len(liveSet) > 0 {
			first := liveSet[0]
			return Result{}, core.NewPreconditionError(
				"cannot submit: %d processing unit(s) already in flight (e.g. %s); resolve or use --select for a disjoint set", len(liveSet), first)
		}
	}

	switch req.Mode {
	case OneJob:
		return planOneJob(led), nil
	case CountN:
		return planCountN(led, req.Count), nil
	case All:
		return planAll(led, req.Policy)
	case Explicit:
		return planExplicit(led, req.PUs)
	case Resubmit:
		return planResubmit(led, req.PUs, req.Policy)
	default:
		return Result{}, core.NewConfigError("unknown submission planner mode", nil)
	}
}

func collectLive(led *ledger.Ledger) []core.ProcessingUnit {
	var live []core.ProcessingUnit
	for _, pu := range led.PUs() {
		row, _ := led.Get(pu)
		if row.StateCategory != nil && row.StateCategory.Live() {
			live = append(live, pu)
		}
	}
	return live
}

func planOneJob(led *ledger.Ledger) Result {
	for _, pu := range led.PUs() {
		row, _ := led.Get(pu)
		if !row.Submitted {
			return Result{Candidates: []core.ProcessingUnit{pu}}
		}
	}
	return Result{}
}

func planCountN(led *ledger.Ledger, n int) Result {
	var out []core.ProcessingUnit
	for _, pu := range led.PUs() {
		if len(out) >= n {
			break
		}
		row, _ := led.Get(pu)
		if !row.Submitted {
			out = append(out, pu)
		}
	}
	return Result{Candidates: out}
}

func planAll(led *ledger.Ledger, policy ResubmitPolicy) (Result, error) {
	expr, err := govaluate.NewEvaluableExpression(allPredicate)
	if err != nil {
		return Result{}, errors.Wrap(err, "compiling candidate predicate")
	}

	var out []core.ProcessingUnit
	for _, pu := range led.PUs() {
		row, _ := led.Get(pu)
		if row.HasResults {
			continue
		}
		ok, err := evalRow(expr, row, false, policy.Pending)
		if err != nil {
			return Result{}, errors.Wrap(err, "evaluating candidate predicate")
		}
		if ok {
			out = append(out, pu)
		}
	}
	return Result{Candidates: out}, nil
}

func planExplicit(led *ledger.Ledger, pus []core.ProcessingUnit) (Result, error) {
	var out []core.ProcessingUnit
	var warnings []string

	for _, pu := range pus {
		row, ok := led.Get(pu)
		if !ok {
			return Result{}, core.NewConfigError("unknown processing unit "+pu.String(), nil)
		}
		if row.HasResults {
			warnings = append(warnings, pu.String()+": has_results=true, not resubmitting (delete results first if intended)")
			continue
		}
		if row.StateCategory != nil {
			switch *row.StateCategory {
			case core.StateStalled:
				// §9 Q1: never automatic, but always-allowed when named
				// explicitly, with a warning attached.
				warnings = append(warnings, pu.String()+": currently stalled, forcing resubmission per explicit override")
			case core.StateRunning, core.StatePending:
				warnings = append(warnings, pu.String()+": currently "+string(*row.StateCategory)+", not resubmitting")
				continue
			}
		}
		out = append(out, pu)
	}
	return Result{Candidates: out, Warnings: warnings}, nil
}

func planResubmit(led *ledger.Ledger, override []core.ProcessingUnit, policy ResubmitPolicy) (Result, error) {
	expr, err := govaluate.NewEvaluableExpression(resubmitPredicate)
	if err != nil {
		return Result{}, errors.Wrap(err, "compiling resubmit predicate")
	}

	narrow := make(map[string]bool, len(override))
	for _, pu := range override {
		narrow[pu.Key()] = true
	}

	var out []core.ProcessingUnit
	var warnings []string

	for _, pu := range led.PUs() {
		named := narrow[pu.Key()]
		if len(narrow) > 0 && !named {
			continue
		}
		row, _ := led.Get(pu)
		if row.HasResults {
			if named {
				warnings = append(warnings, pu.String()+": has_results=true, not resubmitting")
			}
			continue
		}

		// §9 Q1: stalled is never picked up by the policy predicate below
		// (not automatic), but a PU named explicitly in the override is
		// force-submitted with a warning regardless of policy.
		if named && row.StateCategory != nil && *row.StateCategory == core.StateStalled {
			warnings = append(warnings, pu.String()+": currently stalled, forcing resubmission per explicit override")
			out = append(out, pu)
			continue
		}

		ok, err := evalRow(expr, row, policy.Failed, policy.Pending)
		if err != nil {
			return Result{}, errors.Wrap(err, "evaluating resubmit predicate")
		}
		if !ok && named {
			warnings = append(warnings, pu.String()+": does not match the resubmit policy, skipping")
			continue
		}
		if ok {
			out = append(out, pu)
		}
	}
	return Result{Candidates: out, Warnings: warnings}, nil
}

func evalRow(expr *govaluate.EvaluableExpression, row ledger.Row, failedAllowed, pendingAllowed bool) (bool, error) {
	isFailed := row.IsFailed != nil && *row.IsFailed
	stateCategory := ""
	if row.StateCategory != nil {
		stateCategory = string(*row.StateCategory)
	}

	params := map[string]interface{}{
		"submitted":       row.Submitted,
		"is_failed":       isFailed,
		"state_category":  stateCategory,
		"pending_allowed": pendingAllowed,
		"failed_allowed":  failedAllowed,
	}

	result, err := expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, errors.New("candidate predicate did not evaluate to a boolean")
	}
	return b, nil
}

// Execute submits candidates via sched and folds the returned receipts back
// into a new ledger (§4.7 step 4). It does not persist the ledger: callers
// save once, atomically, after Execute returns (§4.7 step 5, §5 Ordering
// guarantees).
func Execute(ctx context.Context, led *ledger.Ledger, candidates []core.ProcessingUnit, tpl scheduler.Template, sched scheduler.Adapter) (*ledger.Ledger, error) {
	newLedger := ledger.New(led.Path())

	if len(candidates) == 0 {
		for _, pu := range led.PUs() {
			row, _ := led.Get(pu)
			newLedger.UpsertRow(row)
		}
		return newLedger, nil
	}

	receipt, err := sched.Submit(ctx, tpl, candidates)
	if err != nil {
		for _, pu := range led.PUs() {
			row, _ := led.Get(pu)
			newLedger.UpsertRow(row)
		}
		return newLedger, core.NewAdapterError("Submit", err)
	}

	claimed := make(map[string]scheduler.Receipt, len(receipt.Receipts))
	for _, r := range receipt.Receipts {
		claimed[r.PU.Key()] = r
	}

	for _, pu := range led.PUs() {
		row, _ := led.Get(pu)
		if r, ok := claimed[pu.Key()]; ok {
			row.MarkSubmitted(r.JobID, r.TaskID)
		}
		newLedger.UpsertRow(row)
	}

	return newLedger, nil
}
