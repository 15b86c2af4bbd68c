// Package ledger implements the Job Ledger (C2): the persistent, one-row-
// per-Processing-Unit record of submission, scheduler state, and
// diagnostics (§4.2). Persistence is a delimited text record with atomic
// temp-file-then-rename writes, generalizing the atomic Update/UpdateStatus
// discipline in controllers/common/controller.go to a plain file rename
// since there is no API-server optimistic-concurrency layer in this domain.
package ledger

import (
	"time"

	"github.com/pennlinc/batchctl/internal/core"
)

// Unsubmitted sentinels (§3): job_id/task_id are -1 before a submission.
const (
	NoJobID  int64 = -1
	NoTaskID int32 = -1
)

// Row is one Ledger Row (§3). Nullable columns are represented as pointers;
// nil is the on-disk empty token.
type Row struct {
	PU core.ProcessingUnit

	Submitted bool
	JobID     int64 // NoJobID sentinel when never submitted
	TaskID    int32 // NoTaskID sentinel when not an array task

	StateCategory *core.StateCategory
	StateCode     *string
	Runtime       *time.Duration

	HasResults bool
	IsFailed   *bool // nil when not yet determinable

	LogBasename    *string
	LastStdoutLine *string
	AlertMessage   *string

	// Scheduler-exposed fields (§3), nullable.
	TimeLimit *string
	Nodes     *int32
	CPUs      *int32
	Partition *string
	Name      *string
}

// NewRow builds the zero-state row for a freshly declared PU: not
// submitted, every scheduler/log field null, per invariant 3.
func NewRow(pu core.ProcessingUnit) Row {
	return Row{
		PU:        pu,
		Submitted: false,
		JobID:     NoJobID,
		TaskID:    NoTaskID,
	}
}

// ClearLiveState nils every scheduler-derived field; the log-derived
// fields are left to ClearLogState. Used
// whenever a row transitions into a branch-backed success (§4.6 step 2) or
// back to a pre-submission state.
func (r *Row) ClearLiveState() {
	r.StateCategory = nil
	r.StateCode = nil
	r.Runtime = nil
	r.TimeLimit = nil
	r.Nodes = nil
	r.CPUs = nil
	r.Partition = nil
	r.Name = nil
}

// ClearLogState nils the log-classifier-derived fields only.
func (r *Row) ClearLogState() {
	r.LogBasename = nil
	r.LastStdoutLine = nil
	r.AlertMessage = nil
}

// MarkSubmitted records a new submission receipt, overwriting job_id/task_id
// (invariant 6: only a later successful submission may overwrite them) and
// resetting every other field to the pre-observation state.
func (r *Row) MarkSubmitted(jobID int64, taskID int32) {
	r.Submitted = true
	r.JobID = jobID
	r.TaskID = taskID
	r.HasResults = false
	r.IsFailed = nil
	r.ClearLiveState()
	r.ClearLogState()
}

// Clone returns a deep-enough copy of r: the pointer fields are
// re-allocated so mutating the clone never aliases the original.
func (r Row) Clone() Row {
	c := r
	if r.StateCategory != nil {
		v := *r.StateCategory
		c.StateCategory = &v
	}
	if r.StateCode != nil {
		v := *r.StateCode
		c.StateCode = &v
	}
	if r.Runtime != nil {
		v := *r.Runtime
		c.Runtime = &v
	}
	if r.IsFailed != nil {
		v := *r.IsFailed
		c.IsFailed = &v
	}
	if r.LogBasename != nil {
		v := *r.LogBasename
		c.LogBasename = &v
	}
	if r.LastStdoutLine != nil {
		v := *r.LastStdoutLine
		c.LastStdoutLine = &v
	}
	if r.AlertMessage != nil {
		v := *r.AlertMessage
		c.AlertMessage = &v
	}
	if r.TimeLimit != nil {
		v := *r.TimeLimit
		c.TimeLimit = &v
	}
	if r.Nodes != nil {
		v := *r.Nodes
		c.Nodes = &v
	}
	if r.CPUs != nil {
		v := *r.CPUs
		c.CPUs = &v
	}
	if r.Partition != nil {
		v := *r.Partition
		c.Partition = &v
	}
	if r.Name != nil {
		v := *r.Name
		c.Name = &v
	}
	return c
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
