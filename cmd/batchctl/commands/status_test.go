package commands

import (
	"testing"

	"github.com/pennlinc/batchctl/internal/ledger"
)

func TestBoolStr(t *testing.T) {
	if boolStr(true) != "true" {
		t.Fatalf("expected true")
	}
	if boolStr(false) != "false" {
		t.Fatalf("expected false")
	}
}

func TestJobIDStrUnsubmittedSentinel(t *testing.T) {
	if got := jobIDStr(ledger.NoJobID); got != "-" {
		t.Fatalf("expected sentinel dash, got %q", got)
	}
}

func TestJobIDStrFormatsSubmittedID(t *testing.T) {
	if got := jobIDStr(42); got != "42" {
		t.Fatalf("expected 42, got %q", got)
	}
}
