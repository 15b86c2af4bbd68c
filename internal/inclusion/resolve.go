// Package inclusion implements the Inclusion Resolver (C1): producing the
// canonical, ordered, duplicate-free set of Processing Units to process
// (§4.1). Follows pkg/client/management.go's "enumerate, then filter, then
// validate" shape.
package inclusion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pennlinc/batchctl/internal/config"
	"github.com/pennlinc/batchctl/internal/core"
)

// Dropped records a PU excluded from the resolved list, with the reason,
// for observability (§4.1 step 4).
type Dropped struct {
	PU     core.ProcessingUnit
	Reason string
}

// Result is the outcome of Resolve: the canonical ordered list plus any
// PUs dropped along the way.
type Result struct {
	List    []core.ProcessingUnit
	Dropped []Dropped
}

// FS abstracts the filesystem the resolver checks required_files patterns
// against (§6 "Filesystem abstraction").
type FS interface {
	// Glob returns paths matching pattern, relative to dir.
	Glob(dir, pattern string) ([]string, error)
	// ReadDir lists entry names directly under dir.
	ReadDir(dir string) ([]string, error)
	// IsDir reports whether path exists and is a directory.
	IsDir(path string) bool
}

// OSFilesystem is the default FS backed by the local filesystem.
type OSFilesystem struct{}

func (OSFilesystem) Glob(dir, pattern string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, pattern))
}

func (OSFilesystem) ReadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (OSFilesystem) IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Resolve implements §4.1's algorithm. initialList is optional (nil means
// "none supplied"); when non-nil its order is preserved, otherwise the
// output is sorted lexicographically by (subject, session).
func Resolve(cfg *config.Project, fs FS, initialList []core.ProcessingUnit) (Result, error) {
	ds, err := cfg.FirstInputDataset()
	if err != nil {
		return Result{}, err
	}

	root := ds.PathInProject
	if !fs.IsDir(root) {
		return Result{}, core.NewConfigError(fmt.Sprintf("input dataset root %q does not exist", root), nil)
	}

	userSupplied := initialList != nil

	seed, err := seedSet(cfg, fs, ds, initialList)
	if err != nil {
		return Result{}, err
	}

	var res Result
	seen := make(map[string]bool, len(seed))

	for _, pu := range seed {
		key := pu.Key()
		if seen[key] {
			continue // step 3: deduplicate
		}
		seen[key] = true

		if ds.Kind == config.DatasetRaw {
			ok, reason := satisfiesRequiredFiles(fs, root, pu, ds.RequiredFiles)
			if !ok {
				res.Dropped = append(res.Dropped, Dropped{PU: pu, Reason: reason})
				continue
			}
		}
		// zipped datasets are trusted (§4.1 step 2): no check performed.

		res.List = append(res.List, pu)
	}

	if len(res.List) == 0 {
		return Result{}, core.NewConfigError("inclusion resolution produced zero processing units after filtering", nil)
	}

	if !userSupplied {
		sort.Slice(res.List, func(i, j int) bool { return res.List[i].Less(res.List[j]) })
	}

	return res, nil
}

// seedSet builds the unfiltered candidate set: the user list if supplied,
// else an enumeration of the first input dataset (§4.1 step 1).
func seedSet(cfg *config.Project, fs FS, ds config.InputDataset, initialList []core.ProcessingUnit) ([]core.ProcessingUnit, error) {
	if initialList != nil {
		return initialList, nil
	}

	subjects, err := fs.ReadDir(ds.PathInProject)
	if err != nil {
		return nil, core.NewConfigError("cannot enumerate input dataset "+ds.PathInProject, err)
	}

	mode := cfg.Mode()

	var out []core.ProcessingUnit
	for _, subjDir := range subjects {
		if mode == core.SingleLevel {
			out = append(out, core.ProcessingUnit{Subject: subjDir})
			continue
		}

		sessions, err := fs.ReadDir(filepath.Join(ds.PathInProject, subjDir))
		if err != nil {
			// a subject directory may legitimately contain no sessions yet;
			// treat as zero sessions rather than a fatal error.
			continue
		}
		for _, sessDir := range sessions {
			out = append(out, core.ProcessingUnit{Subject: subjDir, Session: sessDir})
		}
	}
	return out, nil
}

// satisfiesRequiredFiles checks every required_files pattern against the
// PU's directory (§4.1 step 2): at least one matching path must exist for
// each declared pattern.
func satisfiesRequiredFiles(fs FS, root string, pu core.ProcessingUnit, patterns []string) (bool, string) {
	dir := filepath.Join(root, pu.Subject)
	if pu.HasSession() {
		dir = filepath.Join(dir, pu.Session)
	}

	for _, pattern := range patterns {
		matches, err := fs.Glob(dir, pattern)
		if err != nil || len(matches) == 0 {
			return false, fmt.Sprintf("missing required file pattern %q under %s", pattern, dir)
		}
	}
	return true, ""
}

// ValidateAgainstEnumeration checks that every PU in initialList actually
// exists in the dataset enumeration, returning the unknown ones as a
// warning-level finding (§4.1 Failure modes: "An initial list referencing
// unknown PUs → warning with enumeration").
func ValidateAgainstEnumeration(cfg *config.Project, fs FS, initialList []core.ProcessingUnit) ([]core.ProcessingUnit, error) {
	ds, err := cfg.FirstInputDataset()
	if err != nil {
		return nil, err
	}

	known, err := seedSet(cfg, fs, ds, nil)
	if err != nil {
		return nil, err
	}

	knownSet := make(map[string]bool, len(known))
	for _, pu := range known {
		knownSet[pu.Key()] = true
	}

	var unknown []core.ProcessingUnit
	for _, pu := range initialList {
		if !knownSet[pu.Key()] {
			unknown = append(unknown, pu)
		}
	}
	return unknown, nil
}

// Update computes the consequences of re-resolving the Inclusion List after
// an input-dataset change (§4.1 "Update semantics"). unmergedBranchesExist
// must be false or Update refuses, since row-removal would orphan
// provenance.
func Update(current, fresh []core.ProcessingUnit, hasResults func(core.ProcessingUnit) bool, unmergedBranchesExist bool) (added, removed []core.ProcessingUnit, err error) {
	if unmergedBranchesExist {
		return nil, nil, core.NewPreconditionError("cannot update inclusion list: unmerged result branches exist, re-resolution would orphan provenance")
	}

	freshSet := make(map[string]bool, len(fresh))
	for _, pu := range fresh {
		freshSet[pu.Key()] = true
	}
	currentSet := make(map[string]bool, len(current))
	for _, pu := range current {
		currentSet[pu.Key()] = true
	}

	for _, pu := range fresh {
		if !currentSet[pu.Key()] {
			added = append(added, pu)
		}
	}

	for _, pu := range current {
		if freshSet[pu.Key()] {
			continue
		}
		// only drop PUs that never produced results (§4.1 step c)
		if !hasResults(pu) {
			removed = append(removed, pu)
		}
	}

	return added, removed, nil
}
