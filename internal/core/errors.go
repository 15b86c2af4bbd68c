package core

import "github.com/pkg/errors"

// Error kinds. These are the taxonomy the command handlers switch on to pick
// an exit code (see cmd/batchctl); they are never compared by string value,
// only by type, through ClassifyError's walk of the Unwrap chain.

// ConfigError reports a missing or malformed project configuration, an
// unresolvable inclusion list, or an unknown processing-unit reference.
// Fatal at command entry.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err (which may be nil) as a ConfigError.
func NewConfigError(msg string, err error) error {
	return &ConfigError{Msg: msg, Err: err}
}

// PreconditionError reports a command invoked while a required precondition
// does not hold, e.g. submit while jobs are queued, merge with running jobs,
// or update-input-data with unmerged branches. Fatal with an actionable
// message; the caller must resolve the precondition and retry.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string { return e.Msg }

func NewPreconditionError(format string, args ...interface{}) error {
	return &PreconditionError{Msg: errors.Errorf(format, args...).Error()}
}

// AdapterError reports a transient cluster/IO failure from the scheduler or
// artifact-store adapters. Safe to retry with bounded backoff for polling;
// never retried for submission (§7: "submit: no").
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return "adapter error during " + e.Op + ": " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error { return e.Err }

func NewAdapterError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AdapterError{Op: op, Err: err}
}

// ConsistencyWarning reports a condition that is surfaced to the operator
// but does not abort the command, e.g. a branch exists without a matching
// SUCCESS marker, or an orphaned job ID observed in the live queue.
type ConsistencyWarning struct {
	Msg string
	PU  *ProcessingUnit
}

func (e *ConsistencyWarning) Error() string {
	if e.PU != nil {
		return e.PU.String() + ": " + e.Msg
	}
	return e.Msg
}

func NewConsistencyWarning(pu *ProcessingUnit, format string, args ...interface{}) *ConsistencyWarning {
	return &ConsistencyWarning{Msg: errors.Errorf(format, args...).Error(), PU: pu}
}

// PartialMergeFailure reports that the finalizer merged some chunks before
// failing; the repository is left in the last-good state and a retry will
// resume with the remaining, unmerged branches.
type PartialMergeFailure struct {
	MergedChunks int
	TotalChunks  int
	Err          error
}

func (e *PartialMergeFailure) Error() string {
	return errors.Wrapf(e.Err, "merge stopped after %d/%d chunks", e.MergedChunks, e.TotalChunks).Error()
}

func (e *PartialMergeFailure) Unwrap() error { return e.Err }
