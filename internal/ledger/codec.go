package ledger

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/pennlinc/batchctl/internal/core"
)

// header is the documented column order (§6 "Ledger file format"). Changing
// this order is a breaking format change.
var header = []string{
	"subject", "session",
	"submitted", "job_id", "task_id",
	"state_category", "state_code", "runtime_seconds",
	"has_results", "is_failed",
	"log_basename", "last_stdout_line", "alert_message",
	"time_limit", "nodes", "cpus", "partition", "name",
}

// encodeRow renders a row as a slice of fields in header order. Null is the
// empty string; -1 is a literal sentinel, never confused with null.
func encodeRow(r Row) []string {
	return []string{
		r.PU.Subject,
		r.PU.Session,
		strconv.FormatBool(r.Submitted),
		strconv.FormatInt(r.JobID, 10),
		strconv.FormatInt(int64(r.TaskID), 10),
		encodeStateCategory(r.StateCategory),
		encodeStringPtr(r.StateCode),
		encodeDurationPtr(r.Runtime),
		strconv.FormatBool(r.HasResults),
		encodeBoolPtr(r.IsFailed),
		encodeStringPtr(r.LogBasename),
		encodeStringPtr(r.LastStdoutLine),
		encodeStringPtr(r.AlertMessage),
		encodeStringPtr(r.TimeLimit),
		encodeInt32Ptr(r.Nodes),
		encodeInt32Ptr(r.CPUs),
		encodeStringPtr(r.Partition),
		encodeStringPtr(r.Name),
	}
}

// decodeRow is the exact inverse of encodeRow. It never coerces: a string
// field that happens to look numeric round-trips as a string (§4.2 Types).
func decodeRow(fields []string) (Row, error) {
	if len(fields) != len(header) {
		return Row{}, errors.Errorf("expected %d columns, got %d", len(header), len(fields))
	}

	var r Row
	r.PU = core.ProcessingUnit{Subject: fields[0], Session: fields[1]}

	submitted, err := strconv.ParseBool(fields[2])
	if err != nil {
		return Row{}, errors.Wrap(err, "submitted column")
	}
	r.Submitted = submitted

	jobID, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Row{}, errors.Wrap(err, "job_id column")
	}
	r.JobID = jobID

	taskID, err := strconv.ParseInt(fields[4], 10, 32)
	if err != nil {
		return Row{}, errors.Wrap(err, "task_id column")
	}
	r.TaskID = int32(taskID)

	cat, err := decodeStateCategory(fields[5])
	if err != nil {
		return Row{}, err
	}
	r.StateCategory = cat

	r.StateCode = decodeStringPtr(fields[6])

	dur, err := decodeDurationPtr(fields[7])
	if err != nil {
		return Row{}, errors.Wrap(err, "runtime_seconds column")
	}
	r.Runtime = dur

	hasResults, err := strconv.ParseBool(fields[8])
	if err != nil {
		return Row{}, errors.Wrap(err, "has_results column")
	}
	r.HasResults = hasResults

	isFailed, err := decodeBoolPtr(fields[9])
	if err != nil {
		return Row{}, errors.Wrap(err, "is_failed column")
	}
	r.IsFailed = isFailed

	r.LogBasename = decodeStringPtr(fields[10])
	r.LastStdoutLine = decodeStringPtr(fields[11])
	r.AlertMessage = decodeStringPtr(fields[12])
	r.TimeLimit = decodeStringPtr(fields[13])

	nodes, err := decodeInt32Ptr(fields[14])
	if err != nil {
		return Row{}, errors.Wrap(err, "nodes column")
	}
	r.Nodes = nodes

	cpus, err := decodeInt32Ptr(fields[15])
	if err != nil {
		return Row{}, errors.Wrap(err, "cpus column")
	}
	r.CPUs = cpus

	r.Partition = decodeStringPtr(fields[16])
	r.Name = decodeStringPtr(fields[17])

	return r, nil
}

func encodeStringPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func decodeStringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return strPtr(s)
}

func encodeBoolPtr(p *bool) string {
	if p == nil {
		return ""
	}
	return strconv.FormatBool(*p)
}

func decodeBoolPtr(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return boolPtr(b), nil
}

func encodeInt32Ptr(p *int32) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(int64(*p), 10)
}

func decodeInt32Ptr(s string) (*int32, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil, err
	}
	v32 := int32(v)
	return &v32, nil
}

func encodeDurationPtr(p *time.Duration) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(p.Seconds(), 'f', -1, 64)
}

func decodeDurationPtr(s string) (*time.Duration, error) {
	if s == "" {
		return nil, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	d := time.Duration(secs * float64(time.Second))
	return &d, nil
}

func encodeStateCategory(c *core.StateCategory) string {
	if c == nil {
		return ""
	}
	return string(*c)
}

func decodeStateCategory(s string) (*core.StateCategory, error) {
	if s == "" {
		return nil, nil
	}
	switch core.StateCategory(s) {
	case core.StatePending, core.StateRunning, core.StateStalled, core.StateUnknown:
		c := core.StateCategory(s)
		return &c, nil
	default:
		return nil, errors.Errorf("unknown state_category %q", s)
	}
}

// writeCSV serializes rows (with header) to w.
func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(encodeRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// readCSV parses rows (with header) from r.
func readCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)

	got, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("ledger file is empty, missing header")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading ledger header")
	}
	if len(got) != len(header) {
		return nil, errors.Errorf("ledger header has %d columns, expected %d", len(got), len(header))
	}
	for i, name := range header {
		if got[i] != name {
			return nil, errors.Errorf("ledger header column %d is %q, expected %q", i, got[i], name)
		}
	}

	var rows []Row
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading ledger row")
		}
		row, err := decodeRow(fields)
		if err != nil {
			return nil, errors.Wrap(err, "decoding ledger row")
		}
		rows = append(rows, row)
	}
	return rows, nil
}
