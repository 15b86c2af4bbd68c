// Package classifier implements the Log Classifier (C5, §4.5): scanning a
// Processing Unit's stdout/stderr for configured alert patterns, in
// declaration order, first match wins. Bounded-memory tail reads use
// armon/circbuf, built for exactly this job
// (§5: "cap at a few MB, scanning from both ends if needed").
package classifier

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/armon/circbuf"
	"github.com/pkg/errors"

	"github.com/pennlinc/batchctl/internal/config"
	"github.com/pennlinc/batchctl/internal/core"
)

// maxScanBytes bounds the total bytes read per file (§5 "cap at a few MB").
const maxScanBytes = 4 << 20 // 4 MiB

// tailBufferSize bounds the circular buffer used to extract the last
// non-empty line without loading the whole file.
const tailBufferSize = 64 << 10 // 64 KiB

// NoLogsYet and NoAlertFound are the two non-match sentinel results (§4.5
// Contract): "no logs yet" when the log files do not exist, "no alert
// found" when they exist but nothing in the catalog matched.
const (
	NoLogsYet    = "no logs yet"
	NoAlertFound = "no alert found"
)

// SuccessMarker is the literal stdout line indicating the job's wrapper
// reached its end (§4.5 step 4), used for consistency checks independent
// of branch observation.
const SuccessMarker = "SUCCESS"

// LogPaths names the two log files for one submission.
type LogPaths struct {
	Stdout string
	Stderr string
}

// Result is the outcome of Classify.
type Result struct {
	// AlertMessage is "<stream>: <pattern>" on a match, else "".
	AlertMessage string
	// NoLogsYet is true when neither log file could be found.
	NoLogsYet bool
	// LastStdoutLine is the last non-empty line of stdout, independent of
	// matching (§4.5 step 3). Empty if stdout has no non-empty lines.
	LastStdoutLine string
	// SawSuccessMarker is true iff LastStdoutLine equals SuccessMarker
	// exactly; an earlier stdout line equal to the marker does not count.
	SawSuccessMarker bool
}

// AlertMessageOrDefault returns the classification label exactly as §4.5's
// contract documents: the matched message, else NoAlertFound or NoLogsYet.
func (r Result) AlertMessageOrDefault() string {
	if r.NoLogsYet {
		return NoLogsYet
	}
	if r.AlertMessage != "" {
		return r.AlertMessage
	}
	return NoAlertFound
}

// ResolveLogPaths computes the stdout/stderr paths for a PU's current
// job_id/task_id (§4.5 step 1): one flat log pair per (job_id, task_id)
// directly under logDir, named "job-<job_id>[-<task_id>]-<subject>[-<session>]"
// with ".out"/".err" suffixes.
func ResolveLogPaths(logDir string, pu core.ProcessingUnit, jobID int64, taskID int32) LogPaths {
	base := "job-" + strconv.FormatInt(jobID, 10)
	if taskID >= 0 {
		base += "-" + strconv.FormatInt(int64(taskID), 10)
	}
	base += "-" + strings.ReplaceAll(pu.Key(), "/", "-")

	return LogPaths{
		Stdout: filepath.Join(logDir, base+".out"),
		Stderr: filepath.Join(logDir, base+".err"),
	}
}

// Classify implements §4.5's algorithm: deterministic, a pure function of
// the log contents and the catalog (testable property 6).
func Classify(paths LogPaths, catalog []config.AlertEntry) (Result, error) {
	stdoutExists := fileExists(paths.Stdout)
	stderrExists := fileExists(paths.Stderr)

	if !stdoutExists && !stderrExists {
		return Result{NoLogsYet: true}, nil
	}

	var result Result

	for _, entry := range catalog {
		path := paths.Stdout
		if entry.Stream == "stderr" {
			path = paths.Stderr
		}

		matched, err := scanForPattern(path, entry.Pattern)
		if err != nil {
			return Result{}, errors.Wrapf(err, "scanning %s log", entry.Stream)
		}
		if matched {
			result.AlertMessage = entry.Stream + ": " + entry.Pattern
			break // first match in stream order, then pattern order, wins
		}
	}

	if stdoutExists {
		last, sawSuccess, err := lastNonEmptyLine(paths.Stdout)
		if err != nil {
			return Result{}, errors.Wrap(err, "reading last stdout line")
		}
		result.LastStdoutLine = last
		result.SawSuccessMarker = sawSuccess
	}

	return result, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// scanForPattern reads path line by line (bounded to maxScanBytes) looking
// for the first line containing pattern as a case-sensitive substring. No
// regex, no backtracking (§4.5 Determinism).
func scanForPattern(path string, pattern string) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(io.LimitReader(f, maxScanBytes))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if strings.Contains(scanner.Text(), pattern) {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, nil
}

// lastNonEmptyLine reads path into a fixed-capacity ring buffer so memory
// use is bounded regardless of file size, then returns the last non-empty
// line found in the retained tail.
func lastNonEmptyLine(path string) (string, bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	buf, err := circbuf.NewBuffer(tailBufferSize)
	if err != nil {
		return "", false, err
	}

	// Start at most maxScanBytes before the end, so a file larger than the
	// cap still yields its real last line.
	if fi, err := f.Stat(); err == nil && fi.Size() > maxScanBytes {
		if _, err := f.Seek(fi.Size()-maxScanBytes, io.SeekStart); err != nil {
			return "", false, err
		}
	}

	if _, err := io.Copy(buf, io.LimitReader(f, maxScanBytes)); err != nil {
		return "", false, err
	}

	lines := strings.Split(string(buf.Bytes()), "\n")

	last := ""
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		last = trimmed
	}

	// §9 Q2: the consistency check is specifically "last_stdout_line ==
	// SUCCESS", not any occurrence of the marker in the file.
	return last, last == SuccessMarker, nil
}
