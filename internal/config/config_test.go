package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleProject = `
processing_level: session
queue: normal
input_datasets:
  zzz_raw:
    origin: /data/raw
    is_zipped: false
    path_in_project: inputs/raw
    required_files: ["*.nii.gz"]
  aaa_freesurfer:
    origin: /data/freesurfer
    is_zipped: true
    path_in_project: inputs/freesurfer
`

func writeProjectFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "project.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing project config: %v", err)
	}
	return path
}

func TestLoadRejectsUnknownProcessingLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFile(t, dir, "processing_level: bogus\ninput_datasets: {}\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unrecognized processing_level")
	}
}

func TestFirstInputDatasetUsesDeclarationOrderNotAlphabeticalOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFile(t, dir, sampleProject)

	proj, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ds, err := proj.FirstInputDataset()
	if err != nil {
		t.Fatalf("FirstInputDataset: %v", err)
	}
	// "aaa_freesurfer" sorts first alphabetically, but "zzz_raw" is declared
	// first in the YAML document; declaration order must win.
	if ds.Name != "zzz_raw" {
		t.Fatalf("expected the first-declared dataset %q, got %q", "zzz_raw", ds.Name)
	}
	if ds.Kind != DatasetRaw {
		t.Fatalf("expected DatasetRaw, got %v", ds.Kind)
	}
}

func TestFirstInputDatasetFallsBackToSmallestNameWithoutLoad(t *testing.T) {
	p := &Project{
		InputDatasets: map[string]InputDataset{
			"zzz_raw":        {IsZipped: false},
			"aaa_freesurfer": {IsZipped: true},
		},
	}

	ds, err := p.FirstInputDataset()
	if err != nil {
		t.Fatalf("FirstInputDataset: %v", err)
	}
	if ds.Name != "aaa_freesurfer" {
		t.Fatalf("expected the smallest-name fallback %q, got %q", "aaa_freesurfer", ds.Name)
	}
}

func TestFirstInputDatasetErrorsWhenNoneDeclared(t *testing.T) {
	p := &Project{}
	if _, err := p.FirstInputDataset(); err == nil {
		t.Fatal("expected an error when no input datasets are declared")
	}
}
