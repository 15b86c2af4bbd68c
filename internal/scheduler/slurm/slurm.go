// Package slurm implements the Scheduler Adapter (§4.3) over the Slurm
// workload manager, shelling out to sbatch/squeue/sacct using the
// kubeshop/testkube process helper. All parsing of raw scheduler output
// stays inside this package; callers see only the scheduler.Adapter
// interface.
package slurm

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kubeshop/testkube/pkg/process"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/scheduler"
)

// squeueFormat is the field order requested from squeue; parseSqueueLine
// must stay in lockstep with it.
const squeueFormat = "%i|%t|%M|%l|%D|%C|%P|%j"

// Config configures the Slurm backend.
type Config struct {
	// ArrayThreshold is the submission-planner threshold (§4.3).
	ArrayThreshold int
	// RenderOptions are the per-project template placeholders (§6).
	RenderOptions scheduler.RenderOptions
	// WorkDir is where rendered submission scripts are written before
	// being handed to sbatch.
	WorkDir string
}

// Adapter is the Slurm-backed scheduler.Adapter implementation.
type Adapter struct {
	cfg Config
	log *logrus.Entry
}

// New builds a Slurm Adapter. log may be nil, in which case a silent
// logger is used.
func New(cfg Config, log *logrus.Entry) *Adapter {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Adapter{cfg: cfg, log: log}
}

var _ scheduler.Adapter = (*Adapter)(nil)

// Submit implements scheduler.Adapter. It batches pus into a single array
// job when len(pus) meets cfg.ArrayThreshold, else submits one job per PU,
// preserving Inclusion-List order in the generated array so task_id
// mapping is reproducible (§4.3 "Submission ordering").
func (a *Adapter) Submit(ctx context.Context, tpl scheduler.Template, pus []core.ProcessingUnit) (scheduler.SubmissionReceipt, error) {
	if len(pus) == 0 {
		return scheduler.SubmissionReceipt{}, nil
	}

	if scheduler.ArrayThreshold(len(pus), a.cfg.ArrayThreshold) {
		return a.submitArray(ctx, tpl, pus)
	}
	return a.submitIndividually(ctx, tpl, pus)
}

func (a *Adapter) submitIndividually(ctx context.Context, tpl scheduler.Template, pus []core.ProcessingUnit) (scheduler.SubmissionReceipt, error) {
	var receipt scheduler.SubmissionReceipt

	for _, pu := range pus {
		script, err := scheduler.Render(tpl, pu, 0, -1, a.cfg.RenderOptions)
		if err != nil {
			return receipt, err
		}

		scriptPath, err := writeScript(a.cfg.WorkDir, pu, script)
		if err != nil {
			return receipt, errors.Wrapf(err, "writing submission script for %s", pu)
		}

		out, err := process.Execute("sbatch", "--parsable", scriptPath)
		if err != nil {
			return receipt, core.NewAdapterError("sbatch", errors.Wrapf(err, "submitting %s", pu))
		}

		jobID, err := parseParsableJobID(string(out))
		if err != nil {
			return receipt, core.NewAdapterError("sbatch", err)
		}

		a.log.WithField("pu", pu.String()).WithField("job_id", jobID).Info("submitted")

		receipt.Receipts = append(receipt.Receipts, scheduler.Receipt{PU: pu, JobID: jobID, TaskID: -1})
	}

	return receipt, nil
}

func (a *Adapter) submitArray(ctx context.Context, tpl scheduler.Template, pus []core.ProcessingUnit) (scheduler.SubmissionReceipt, error) {
	var receipt scheduler.SubmissionReceipt

	// task IDs are 1-based and assigned in Inclusion-List order so the
	// array index reproducibly maps back to a PU.
	script, err := scheduler.Render(tpl, pus[0], 0, 1, a.cfg.RenderOptions)
	if err != nil {
		return receipt, err
	}

	scriptPath, err := writeArrayScript(a.cfg.WorkDir, pus, script)
	if err != nil {
		return receipt, errors.Wrap(err, "writing array submission script")
	}

	arrayRange := "1-" + strconv.Itoa(len(pus))
	out, err := process.Execute("sbatch", "--parsable", "--array="+arrayRange, scriptPath)
	if err != nil {
		return receipt, core.NewAdapterError("sbatch", errors.Wrap(err, "submitting array job"))
	}

	jobID, err := parseParsableJobID(string(out))
	if err != nil {
		return receipt, core.NewAdapterError("sbatch", err)
	}

	for i, pu := range pus {
		taskID := int32(i + 1)
		receipt.Receipts = append(receipt.Receipts, scheduler.Receipt{PU: pu, JobID: jobID, TaskID: taskID})
	}

	a.log.WithField("job_id", jobID).WithField("count", len(pus)).Info("submitted array job")

	return receipt, nil
}

// PollAll implements scheduler.Adapter as one cheap bulk squeue query.
func (a *Adapter) PollAll(ctx context.Context, owner scheduler.Owner) (map[int64]scheduler.LiveJobInfo, error) {
	args := []string{"--noheader", "--format=" + squeueFormat}
	if owner != "" {
		args = append(args, "--user="+string(owner))
	}

	out, err := process.Execute("squeue", args...)
	if err != nil {
		return nil, core.NewAdapterError("squeue", err)
	}

	result := make(map[int64]scheduler.LiveJobInfo)
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		jobID, info, err := parseSqueueLine(line)
		if err != nil {
			a.log.WithError(err).WithField("line", line).Warn("skipping unparsable squeue line")
			continue
		}
		result[jobID] = info
	}

	return result, nil
}

// PollOne implements scheduler.Adapter for a single job.
func (a *Adapter) PollOne(ctx context.Context, jobID int64) (scheduler.LiveJobInfo, bool, error) {
	out, err := process.Execute("squeue", "--noheader", "--format="+squeueFormat, "--job="+strconv.FormatInt(jobID, 10))
	if err != nil {
		return scheduler.LiveJobInfo{}, false, core.NewAdapterError("squeue", err)
	}

	line := strings.TrimSpace(string(out))
	if line == "" {
		return scheduler.LiveJobInfo{}, false, nil
	}

	_, info, err := parseSqueueLine(line)
	if err != nil {
		return scheduler.LiveJobInfo{}, false, core.NewAdapterError("squeue", err)
	}
	return info, true, nil
}

// Cancel implements scheduler.Adapter. Idempotent: scancel on an already
// finished job exits non-zero but that is not surfaced as an error.
func (a *Adapter) Cancel(ctx context.Context, jobID int64) error {
	_, err := process.Execute("scancel", strconv.FormatInt(jobID, 10))
	if err != nil {
		a.log.WithField("job_id", jobID).WithError(err).Debug("scancel reported an error, treated as already-gone")
	}
	return nil
}

// PostMortem implements scheduler.Adapter via sacct. Failure is benign: the
// caller is expected to treat a non-nil error as a warning, never fatal.
func (a *Adapter) PostMortem(ctx context.Context, jobID int64) (string, error) {
	out, err := process.Execute("sacct", "-j", strconv.FormatInt(jobID, 10), "--noheader", "--format=State,ExitCode", "--parsable2")
	if err != nil {
		return "", core.NewAdapterError("sacct", err)
	}

	line := strings.TrimSpace(string(out))
	if line == "" {
		return "", errors.Errorf("sacct returned no record for job %d", jobID)
	}

	// first line is the parent job's record
	first := strings.SplitN(line, "\n", 2)[0]
	return strings.TrimSpace(first), nil
}

func parseParsableJobID(out string) (int64, error) {
	s := strings.TrimSpace(out)
	// sbatch --parsable may print "jobid" or "jobid;cluster"
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	jobID, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "unparsable sbatch output %q", out)
	}
	return jobID, nil
}

func parseSqueueLine(line string) (int64, scheduler.LiveJobInfo, error) {
	fields := strings.Split(line, "|")
	if len(fields) != 8 {
		return 0, scheduler.LiveJobInfo{}, errors.Errorf("expected 8 fields, got %d", len(fields))
	}

	jobID, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return 0, scheduler.LiveJobInfo{}, errors.Wrap(err, "job id field")
	}

	stateCode := strings.TrimSpace(fields[1])
	runtime := parseSlurmDuration(strings.TrimSpace(fields[2]))

	nodes, _ := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 32)
	cpus, _ := strconv.ParseInt(strings.TrimSpace(fields[5]), 10, 32)

	info := scheduler.LiveJobInfo{
		StateCategory: normalizeState(stateCode),
		StateCode:     stateCode,
		Runtime:       runtime,
		TimeLimit:     strings.TrimSpace(fields[3]),
		Nodes:         int32(nodes),
		CPUs:          int32(cpus),
		Partition:     strings.TrimSpace(fields[6]),
		Name:          strings.TrimSpace(fields[7]),
	}

	return jobID, info, nil
}

// normalizeState maps Slurm's raw state tokens to the normalized
// core.StateCategory (§4.3 "State normalization").
func normalizeState(code string) core.StateCategory {
	switch code {
	case "PD":
		return core.StatePending
	case "R", "CG":
		return core.StateRunning
	case "S", "ST", "PR", "NF", "BF", "DL", "OOM", "TO":
		return core.StateStalled
	default:
		return core.StateUnknown
	}
}

// parseSlurmDuration parses Slurm's squeue %M time format, either
// "MM:SS", "HH:MM:SS" or "D-HH:MM:SS".
func parseSlurmDuration(s string) time.Duration {
	if s == "" || s == "INVALID" {
		return 0
	}

	var days int
	if i := strings.IndexByte(s, '-'); i >= 0 {
		days, _ = strconv.Atoi(s[:i])
		s = s[i+1:]
	}

	parts := strings.Split(s, ":")
	var h, m, sec int
	switch len(parts) {
	case 3:
		h, _ = strconv.Atoi(parts[0])
		m, _ = strconv.Atoi(parts[1])
		sec, _ = strconv.Atoi(parts[2])
	case 2:
		m, _ = strconv.Atoi(parts[0])
		sec, _ = strconv.Atoi(parts[1])
	default:
		return 0
	}

	return time.Duration(days)*24*time.Hour +
		time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second
}
