package inclusion

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/pennlinc/batchctl/internal/config"
	"github.com/pennlinc/batchctl/internal/core"
)

// fakeFS is an in-memory FS for resolver tests; no real cluster or disk
// layout is required (§9 "all tests in §8 must run without a real
// cluster").
type fakeFS struct {
	dirs  map[string]bool
	files map[string][]string // dir -> file basenames present
}

func newFakeFS() *fakeFS {
	return &fakeFS{dirs: map[string]bool{}, files: map[string][]string{}}
}

func (f *fakeFS) addDir(path string)       { f.dirs[path] = true }
func (f *fakeFS) addFile(dir, name string) { f.files[dir] = append(f.files[dir], name) }

func (f *fakeFS) Glob(dir, pattern string) ([]string, error) {
	var out []string
	for _, name := range f.files[dir] {
		matched, _ := filepath.Match(pattern, name)
		if matched {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out, nil
}

func (f *fakeFS) ReadDir(dir string) ([]string, error) {
	names := map[string]bool{}
	prefix := dir + "/"
	for d := range f.dirs {
		if strings.HasPrefix(d, prefix) {
			rest := strings.TrimPrefix(d, prefix)
			if !strings.Contains(rest, "/") && rest != "" {
				names[rest] = true
			}
		}
	}
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeFS) IsDir(path string) bool { return f.dirs[path] }

func baseConfig() *config.Project {
	return &config.Project{
		ProcessingLevel: "session",
		InputDatasets: map[string]config.InputDataset{
			"raw": {
				Name:          "raw",
				PathInProject: "/project/raw",
				Kind:          config.DatasetRaw,
				RequiredFiles: []string{"*.nii.gz"},
			},
		},
	}
}

func TestResolveDropsPUsMissingRequiredFiles(t *testing.T) {
	fs := newFakeFS()
	fs.addDir("/project/raw")
	fs.addDir("/project/raw/sub-01")
	fs.addDir("/project/raw/sub-01/ses-01")
	fs.addFile("/project/raw/sub-01/ses-01", "t1.nii.gz")
	fs.addDir("/project/raw/sub-02")
	fs.addDir("/project/raw/sub-02/ses-01")
	// sub-02/ses-01 has no .nii.gz files: must be dropped.

	res, err := Resolve(baseConfig(), fs, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(res.List) != 1 || res.List[0].Subject != "sub-01" {
		t.Fatalf("unexpected list: %+v", res.List)
	}
	if len(res.Dropped) != 1 || res.Dropped[0].PU.Subject != "sub-02" {
		t.Fatalf("unexpected dropped: %+v", res.Dropped)
	}
}

func TestResolveZeroPUsIsFatal(t *testing.T) {
	fs := newFakeFS()
	fs.addDir("/project/raw")

	_, err := Resolve(baseConfig(), fs, nil)
	if err == nil {
		t.Fatal("expected a fatal ConfigError for zero PUs")
	}
	if _, ok := err.(*core.ConfigError); !ok {
		t.Fatalf("expected *core.ConfigError, got %T", err)
	}
}

func TestResolvePreservesInitialListOrder(t *testing.T) {
	fs := newFakeFS()
	fs.addDir("/project/raw")
	for _, pu := range []string{"sub-03/ses-01", "sub-01/ses-01", "sub-02/ses-01"} {
		parts := strings.Split(pu, "/")
		fs.addDir("/project/raw/" + parts[0])
		fs.addDir("/project/raw/" + pu)
		fs.addFile("/project/raw/"+pu, "t1.nii.gz")
	}

	initial := []core.ProcessingUnit{
		{Subject: "sub-03", Session: "ses-01"},
		{Subject: "sub-01", Session: "ses-01"},
		{Subject: "sub-02", Session: "ses-01"},
	}

	res, err := Resolve(baseConfig(), fs, initial)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(res.List) != 3 {
		t.Fatalf("expected 3 PUs, got %d", len(res.List))
	}
	for i, pu := range initial {
		if !res.List[i].Equal(pu) {
			t.Fatalf("position %d: got %s, want %s (order must be preserved)", i, res.List[i], pu)
		}
	}
}

func TestUpdateRefusesWithUnmergedBranches(t *testing.T) {
	current := []core.ProcessingUnit{{Subject: "sub-01"}}
	fresh := []core.ProcessingUnit{{Subject: "sub-01"}, {Subject: "sub-02"}}

	_, _, err := Update(current, fresh, func(core.ProcessingUnit) bool { return false }, true)
	if err == nil {
		t.Fatal("expected PreconditionError when unmerged branches exist")
	}
	if _, ok := err.(*core.PreconditionError); !ok {
		t.Fatalf("expected *core.PreconditionError, got %T", err)
	}
}

func TestUpdateKeepsSucceededVanishedPUs(t *testing.T) {
	current := []core.ProcessingUnit{{Subject: "sub-01"}, {Subject: "sub-02"}}
	fresh := []core.ProcessingUnit{{Subject: "sub-01"}}

	hasResults := func(pu core.ProcessingUnit) bool { return pu.Subject == "sub-02" }

	added, removed, err := Update(current, fresh, hasResults, false)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(added) != 0 {
		t.Fatalf("expected no additions, got %+v", added)
	}
	if len(removed) != 0 {
		t.Fatalf("sub-02 has results and must not be removed, got %+v", removed)
	}
}
