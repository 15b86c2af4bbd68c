package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pennlinc/batchctl/internal/config"
)

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestClassifyNoLogsYet(t *testing.T) {
	dir := t.TempDir()
	paths := LogPaths{Stdout: filepath.Join(dir, "missing.out"), Stderr: filepath.Join(dir, "missing.err")}

	result, err := Classify(paths, nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !result.NoLogsYet || result.AlertMessageOrDefault() != NoLogsYet {
		t.Fatalf("expected no-logs-yet, got %+v", result)
	}
}

func TestClassifyFirstMatchInStreamThenPatternOrder(t *testing.T) {
	dir := t.TempDir()
	stdout := writeLog(t, dir, "j.out", "line one\nExcessive topologic defect encountered\nline three\n")
	stderr := writeLog(t, dir, "j.err", "some error\n")

	catalog := []config.AlertEntry{
		{Stream: "stdout", Pattern: "does not appear"},
		{Stream: "stdout", Pattern: "Excessive topologic defect encountered"},
		{Stream: "stderr", Pattern: "some error"},
	}

	result, err := Classify(LogPaths{Stdout: stdout, Stderr: stderr}, catalog)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	want := "stdout: Excessive topologic defect encountered"
	if result.AlertMessage != want {
		t.Fatalf("got alert %q, want %q", result.AlertMessage, want)
	}
}

func TestClassifyNoAlertFound(t *testing.T) {
	dir := t.TempDir()
	stdout := writeLog(t, dir, "j.out", "all good\nSUCCESS\n")

	catalog := []config.AlertEntry{{Stream: "stdout", Pattern: "boom"}}

	result, err := Classify(LogPaths{Stdout: stdout, Stderr: filepath.Join(dir, "missing.err")}, catalog)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.AlertMessageOrDefault() != NoAlertFound {
		t.Fatalf("expected no-alert-found, got %q", result.AlertMessageOrDefault())
	}
	if result.LastStdoutLine != "SUCCESS" || !result.SawSuccessMarker {
		t.Fatalf("expected SUCCESS marker detected, got %+v", result)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	stdout := writeLog(t, dir, "j.out", "a\nb\nc\n")
	catalog := []config.AlertEntry{{Stream: "stdout", Pattern: "b"}}
	paths := LogPaths{Stdout: stdout, Stderr: filepath.Join(dir, "missing.err")}

	r1, err := Classify(paths, catalog)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	r2, err := Classify(paths, catalog)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("Classify is not deterministic: %+v vs %+v", r1, r2)
	}
}

func TestClassifySubstringNotRegex(t *testing.T) {
	dir := t.TempDir()
	stdout := writeLog(t, dir, "j.out", "value: a.b.c\n")
	catalog := []config.AlertEntry{{Stream: "stdout", Pattern: "a.b.c"}}
	paths := LogPaths{Stdout: stdout, Stderr: filepath.Join(dir, "missing.err")}

	result, err := Classify(paths, catalog)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.AlertMessage == "" {
		t.Fatal("expected literal substring match")
	}

	// A pattern with a literal dot must not match as a regex wildcard
	// against unrelated text.
	catalog2 := []config.AlertEntry{{Stream: "stdout", Pattern: "aXbXc"}}
	result2, err := Classify(paths, catalog2)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result2.AlertMessage != "" {
		t.Fatal("pattern must be matched as a literal substring, not a regex")
	}
}
