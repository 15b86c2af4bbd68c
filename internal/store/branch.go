package store

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/pennlinc/batchctl/internal/core"
)

// BranchName renders the canonical result-branch name for a submission
// (§4.4): "job-<job_id>-<task_id>-<pu_components>".
func BranchName(jobID int64, taskID int32, pu core.ProcessingUnit) string {
	var b strings.Builder
	b.WriteString("job-")
	b.WriteString(strconv.FormatInt(jobID, 10))
	b.WriteString("-")
	b.WriteString(strconv.FormatInt(int64(taskID), 10))
	b.WriteString("-")
	b.WriteString(pu.Subject)
	if pu.HasSession() {
		b.WriteString("-")
		b.WriteString(pu.Session)
	}
	return b.String()
}

// ParsedBranch is a successfully parsed result-branch name.
type ParsedBranch struct {
	JobID  int64
	TaskID int32
	PU     core.ProcessingUnit
	Legacy bool // true if parsed via the legacy two-segment scheme
}

// canonicalBranchRe strips the fixed "job-<job_id>-<task_id>-" prefix,
// leaving the PU-components segment untouched in group 3. task_id's group
// tolerates a leading "-" so the unsubmitted/non-array sentinel (-1) parses
// even though BranchName renders it with no space before the next hyphen
// (e.g. "job-100--1-sub-0001").
var canonicalBranchRe = regexp.MustCompile(`^(\d+)-(-?\d+)-(.+)$`)

// legacyBranchRe strips the fixed "job-<job_id>-" prefix used by the legacy
// scheme noted in spec.md §9 Q3, which has no task-ID segment at all.
var legacyBranchRe = regexp.MustCompile(`^(\d+)-(.+)$`)

// ParseBranchName is the inverse of BranchName. It never splits the whole
// name on every hyphen — the PU-components segment is taken as the literal
// remainder after the fixed job_id/task_id prefix, since Subject and Session
// values routinely contain their own hyphens (the BIDS "sub-0001"/"ses-01"
// convention). It tolerates the legacy naming scheme, trying the canonical
// form first.
func ParseBranchName(name string, mode core.Mode) (ParsedBranch, error) {
	if !strings.HasPrefix(name, "job-") {
		return ParsedBranch{}, errors.Errorf("branch %q is not a result branch", name)
	}
	rest := strings.TrimPrefix(name, "job-")

	if m := canonicalBranchRe.FindStringSubmatch(rest); m != nil {
		jobID, err1 := strconv.ParseInt(m[1], 10, 64)
		taskID, err2 := strconv.ParseInt(m[2], 10, 32)
		if err1 == nil && err2 == nil {
			if pu, err := puFromString(m[3], mode); err == nil {
				return ParsedBranch{JobID: jobID, TaskID: int32(taskID), PU: pu}, nil
			}
		}
	}

	if m := legacyBranchRe.FindStringSubmatch(rest); m != nil {
		jobID, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			if pu, err2 := puFromString(m[2], mode); err2 == nil {
				return ParsedBranch{JobID: jobID, TaskID: -1, PU: pu, Legacy: true}, nil
			}
		}
	}

	return ParsedBranch{}, errors.Errorf("branch %q does not match the result-branch naming scheme", name)
}

// puFromString recovers the PU from the components segment. SingleLevel
// takes it whole, hyphens and all, as Subject. TwoLevel relies on the BIDS
// convention that both Subject ("sub-<label>") and Session ("ses-<label>")
// are exactly two hyphen-joined tokens, so the segment always splits into
// exactly four: the middle boundary is unambiguous.
func puFromString(segment string, mode core.Mode) (core.ProcessingUnit, error) {
	if mode != core.TwoLevel {
		return core.ProcessingUnit{Subject: segment}, nil
	}

	parts := strings.Split(segment, "-")
	if len(parts) != 4 {
		return core.ProcessingUnit{}, errors.Errorf("expected a four-token sub-<label>-ses-<label> components segment, got %q", segment)
	}
	return core.ProcessingUnit{
		Subject: parts[0] + "-" + parts[1],
		Session: parts[2] + "-" + parts[3],
	}, nil
}

// MatchesPU reports whether branch name is a result branch for pu,
// regardless of which job_id it carries (§4.4: "the presence of any
// matching branch counts as success, even if job_id in the branch name
// differs from the current ledger value").
func MatchesPU(name string, pu core.ProcessingUnit, mode core.Mode) bool {
	parsed, err := ParseBranchName(name, mode)
	if err != nil {
		return false
	}
	return parsed.PU.Equal(pu)
}
