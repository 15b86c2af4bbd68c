package inclusion

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/pennlinc/batchctl/internal/core"
)

// Save persists list as a delimited text record with columns "subject"
// (and "session" if mode is TwoLevel), per §6 "Inclusion list file format".
func Save(path string, list []core.ProcessingUnit, mode core.Mode) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating inclusion list %s", path)
	}
	defer f.Close()

	return writeList(f, list, mode)
}

func writeList(w io.Writer, list []core.ProcessingUnit, mode core.Mode) error {
	cw := csv.NewWriter(w)

	header := []string{"subject"}
	if mode == core.TwoLevel {
		header = append(header, "session")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, pu := range list {
		row := []string{pu.Subject}
		if mode == core.TwoLevel {
			row = append(row, pu.Session)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadList reads an inclusion list file back, preserving file order (the
// caller relies on this order being the submission-priority order, §3).
func LoadList(path string) ([]core.ProcessingUnit, core.Mode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.SingleLevel, errors.Wrapf(err, "opening inclusion list %s", path)
	}
	defer f.Close()

	return readList(f)
}

func readList(r io.Reader) ([]core.ProcessingUnit, core.Mode, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, core.SingleLevel, errors.New("inclusion list is empty, missing header")
	}
	if err != nil {
		return nil, core.SingleLevel, errors.Wrap(err, "reading inclusion list header")
	}

	mode := core.SingleLevel
	if len(header) == 2 && header[1] == "session" {
		mode = core.TwoLevel
	}

	var out []core.ProcessingUnit
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, mode, errors.Wrap(err, "reading inclusion list row")
		}
		pu := core.ProcessingUnit{Subject: fields[0]}
		if mode == core.TwoLevel && len(fields) > 1 {
			pu.Session = fields[1]
		}
		out = append(out, pu)
	}

	return out, mode, nil
}
