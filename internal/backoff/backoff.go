// Package backoff implements a polling backoff and an optional cron gate
// for repeat-poll loops (§5 "each [suspension point] has a configurable
// timeout", generalized here into a repeat-poll schedule). No batchctl
// command uses this package; "status" polls once per invocation. The
// exponential-backoff clamp follows the
// scheduler.getNextScheduleTime deadline-clamping idiom in
// controllers/common/scheduler/scheduler.go; the optional cron gate reuses
// the robfig/cron/v3 dependency directly.
package backoff

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Backoff tracks exponential poll-interval growth capped at Max, doubling
// from Base on every unsuccessful Next call. Not safe for concurrent use;
// one Backoff belongs to one watch loop.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	current time.Duration
}

// New builds a Backoff starting at base and never exceeding max. A non-
// positive max disables the cap (matching §5's wording that the maximum is
// configurable, not mandatory).
func New(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	return &Backoff{Base: base, Max: max}
}

// Next returns the delay to wait before the next poll and advances the
// internal state for the following call.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Base
	} else {
		b.current *= 2
	}
	if b.Max > 0 && b.current > b.Max {
		b.current = b.Max
	}
	return b.current
}

// Reset returns the backoff to its initial state, used whenever a poll
// observes forward progress (a state transition, a new branch, a newly
// failed PU) so repeated progress does not pay the accumulated delay.
func (b *Backoff) Reset() {
	b.current = 0
}

// CronGate optionally restricts a poll loop to only poll at the times
// named by a cron expression, following getNextScheduleTime's "compute the
// next activation, wait until then" shape without the Kubernetes
// CreationTimestamp/StartingDeadlineSeconds machinery that has no analogue
// outside a CR.
type CronGate struct {
	schedule cron.Schedule
}

// ParseCronGate compiles expr (standard five-field cron syntax) into a
// CronGate.
func ParseCronGate(expr string) (*CronGate, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "unparseable schedule %q", expr)
	}
	return &CronGate{schedule: sched}, nil
}

// Next returns the next activation time strictly after from.
func (g *CronGate) Next(from time.Time) time.Time {
	return g.schedule.Next(from)
}

// Ready reports whether now has reached or passed the next activation after
// last. A zero last means "never polled yet", always ready.
func (g *CronGate) Ready(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return !now.Before(g.schedule.Next(last))
}
