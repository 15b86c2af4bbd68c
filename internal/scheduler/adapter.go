// Package scheduler defines the Scheduler Adapter contract (C3, §4.3): the
// stable interface abstracting submit/poll/cancel/post-mortem over queue
// backends. Concrete backends (internal/scheduler/slurm) implement Adapter;
// the reconciler, planner and CLI depend only on this interface: one
// backend concern per file, never ad-hoc branching in the caller.
package scheduler

import (
	"context"
	"time"

	"github.com/pennlinc/batchctl/internal/core"
)

// LiveJobInfo is the bulk-poll payload for one live job (§4.3).
type LiveJobInfo struct {
	StateCategory core.StateCategory
	StateCode     string
	Runtime       time.Duration
	TimeLimit     string
	Nodes         int32
	CPUs          int32
	Partition     string
	Name          string
}

// Receipt maps one submitted Processing Unit to its assigned job/task IDs.
type Receipt struct {
	PU     core.ProcessingUnit
	JobID  int64
	TaskID int32 // -1 when the backend did not use an array job
}

// SubmissionReceipt is the result of a Submit call: one Receipt per
// requested PU, in the same order as the request (§4.3 "Submission
// ordering").
type SubmissionReceipt struct {
	Receipts []Receipt
}

// Template is the opaque submission template (§6): the core treats it as a
// string with documented placeholders and never interprets its contents
// beyond substitution.
type Template struct {
	Body      string
	Preamble  string
	Resources TemplateResources
}

// TemplateResources carries the resource-request fields forwarded opaquely
// into the template (§6 cluster_resources).
type TemplateResources struct {
	TimeLimit string
	Nodes     int32
	CPUs      int32
	Partition string
}

// Owner scopes a PollAll bulk query, e.g. a job-name prefix or submitting
// user, as understood by the backend.
type Owner string

// Adapter is the Scheduler Adapter contract (§4.3), capabilities
// {Submit, PollAll, PollOne, Cancel, PostMortem}.
type Adapter interface {
	// Submit submits one or more jobs for pus using template, choosing
	// between one-per-PU and array-job batching based on list size and a
	// configured threshold. Callers must depend only on the receipt
	// mapping, never on which strategy was used.
	Submit(ctx context.Context, template Template, pus []core.ProcessingUnit) (SubmissionReceipt, error)

	// PollAll performs one cheap bulk query per reconciliation, returning
	// every live job owned by owner.
	PollAll(ctx context.Context, owner Owner) (map[int64]LiveJobInfo, error)

	// PollOne queries a single job without a full bulk poll. No batchctl
	// command calls it.
	PollOne(ctx context.Context, jobID int64) (LiveJobInfo, bool, error)

	// Cancel requests cancellation of jobID. Idempotent: canceling an
	// already-finished or already-canceled job is not an error.
	Cancel(ctx context.Context, jobID int64) error

	// PostMortem retrieves a best-effort exit reason for a job no longer
	// in the live queue. Failure is benign: callers must treat an error
	// here as a warning, never fatal (§4.3, §7).
	PostMortem(ctx context.Context, jobID int64) (string, error)
}

// ArrayThreshold decides, for a Submit call over n PUs, whether the
// backend should batch them into a single array job (§4.3: "chooses
// between one-per-PU and array-job batching based on the list size and a
// configuration threshold").
func ArrayThreshold(n, threshold int) bool {
	return n >= threshold && threshold > 0
}
