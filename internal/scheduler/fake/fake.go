// Package fake provides an in-memory scheduler.Adapter so the reconciler,
// planner and finalizer are testable without a real cluster (§9 "all tests
// in §8 must run without a real cluster").
package fake

import (
	"context"
	"sync"

	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/scheduler"
)

// Adapter is an in-memory scheduler.Adapter. Tests populate Live and
// PostMortems directly, and can inspect Submissions after calling Submit.
type Adapter struct {
	mu sync.Mutex

	// NextJobID is returned (and incremented) on every Submit call.
	NextJobID int64

	// Live is the current bulk-poll view, keyed by job ID.
	Live map[int64]scheduler.LiveJobInfo

	// PostMortems is the canned PostMortem response, keyed by job ID.
	PostMortems map[int64]string

	// Submissions records every Submit call's requested PUs, in order,
	// for assertions.
	Submissions [][]core.ProcessingUnit

	// Canceled records every Cancel call's job ID.
	Canceled []int64

	// ArrayThreshold mirrors the configured submission-planner threshold.
	ArrayThreshold int

	// SubmitErr, when non-nil, is returned by the next Submit call.
	SubmitErr error
}

// New builds an empty fake Adapter.
func New() *Adapter {
	return &Adapter{
		NextJobID:      100,
		Live:           map[int64]scheduler.LiveJobInfo{},
		PostMortems:    map[int64]string{},
		ArrayThreshold: 4,
	}
}

var _ scheduler.Adapter = (*Adapter)(nil)

func (a *Adapter) Submit(ctx context.Context, tpl scheduler.Template, pus []core.ProcessingUnit) (scheduler.SubmissionReceipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.SubmitErr != nil {
		err := a.SubmitErr
		a.SubmitErr = nil
		return scheduler.SubmissionReceipt{}, err
	}

	a.Submissions = append(a.Submissions, append([]core.ProcessingUnit{}, pus...))

	var receipt scheduler.SubmissionReceipt
	jobID := a.NextJobID
	a.NextJobID++

	if scheduler.ArrayThreshold(len(pus), a.ArrayThreshold) {
		for i, pu := range pus {
			receipt.Receipts = append(receipt.Receipts, scheduler.Receipt{PU: pu, JobID: jobID, TaskID: int32(i + 1)})
		}
		return receipt, nil
	}

	for _, pu := range pus {
		receipt.Receipts = append(receipt.Receipts, scheduler.Receipt{PU: pu, JobID: jobID, TaskID: -1})
		jobID++
	}
	a.NextJobID = jobID
	return receipt, nil
}

func (a *Adapter) PollAll(ctx context.Context, owner scheduler.Owner) (map[int64]scheduler.LiveJobInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[int64]scheduler.LiveJobInfo, len(a.Live))
	for k, v := range a.Live {
		out[k] = v
	}
	return out, nil
}

func (a *Adapter) PollOne(ctx context.Context, jobID int64) (scheduler.LiveJobInfo, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, ok := a.Live[jobID]
	return info, ok, nil
}

func (a *Adapter) Cancel(ctx context.Context, jobID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Canceled = append(a.Canceled, jobID)
	delete(a.Live, jobID)
	return nil
}

func (a *Adapter) PostMortem(ctx context.Context, jobID int64) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg, ok := a.PostMortems[jobID]
	if !ok {
		return "", core.NewAdapterError("postmortem", context.DeadlineExceeded)
	}
	return msg, nil
}
