package backoff

import (
	"testing"
	"time"
)

func TestBackoffDoublesUntilCap(t *testing.T) {
	b := New(time.Second, 8*time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, w := range want {
		got := b.Next()
		if got != w {
			t.Fatalf("step %d: got %v, want %v", i, got, w)
		}
	}
}

func TestBackoffResetReturnsToBase(t *testing.T) {
	b := New(time.Second, 0)
	b.Next()
	b.Next()
	b.Reset()

	if got := b.Next(); got != time.Second {
		t.Fatalf("expected base delay after Reset, got %v", got)
	}
}

func TestBackoffUncappedWhenMaxIsZero(t *testing.T) {
	b := New(time.Second, 0)
	for i := 0; i < 10; i++ {
		b.Next()
	}
	got := b.Next()
	want := time.Second << 10
	if got != want {
		t.Fatalf("expected uncapped growth, got %v want %v", got, want)
	}
}

func TestCronGateReadyOnFirstPoll(t *testing.T) {
	gate, err := ParseCronGate("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseCronGate: %v", err)
	}
	if !gate.Ready(time.Time{}, time.Now()) {
		t.Fatal("a never-polled gate must always be ready")
	}
}

func TestCronGateNotReadyBeforeNextActivation(t *testing.T) {
	gate, err := ParseCronGate("0 0 1 1 *") // once a year
	if err != nil {
		t.Fatalf("ParseCronGate: %v", err)
	}
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	soon := last.Add(time.Hour)
	if gate.Ready(last, soon) {
		t.Fatal("gate must not be ready before the next scheduled activation")
	}
}

func TestParseCronGateRejectsGarbage(t *testing.T) {
	if _, err := ParseCronGate("not a cron expression"); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}
