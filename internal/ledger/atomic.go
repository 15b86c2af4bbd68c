package ledger

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Load reads the ledger at path. A missing file is not an error: callers
// seeding a new project start from an empty ledger via New.
func Load(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(path), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening ledger %s", path)
	}
	defer f.Close()

	rows, err := readCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing ledger %s", path)
	}

	l := New(path)
	for _, r := range rows {
		l.UpsertRow(r)
	}
	return l, nil
}

// SaveAtomic writes the ledger to its backing path atomically: a sibling
// temporary file in the same directory is written, fsynced, and renamed
// over the canonical path, so a crash at any point leaves either the prior
// file or the new file fully intact, never a partial write (§4.2, testable
// property 5).
func (l *Ledger) SaveAtomic() error {
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temporary ledger file")
	}
	tmpPath := tmp.Name()

	// Ensure the temp file is cleaned up on any early return.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tmpPath)
		}
	}()

	if err := writeCSV(tmp, l.rows); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing ledger contents")
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "fsyncing ledger file")
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing ledger file")
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		return errors.Wrap(err, "renaming ledger into place")
	}

	succeeded = true
	return nil
}
