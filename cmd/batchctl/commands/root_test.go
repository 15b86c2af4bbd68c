package commands

import "testing"

func TestNewRootCmdRegistersEverySubcommand(t *testing.T) {
	root := NewRootCmd()

	want := []string{"init", "check-setup", "submit", "status", "merge", "update-input-data", "sync-code"}
	got := make(map[string]bool)
	for _, c := range root.Commands() {
		got[c.Name()] = true
	}

	for _, name := range want {
		if !got[name] {
			t.Errorf("expected root command to register %q", name)
		}
	}
	if len(root.Commands()) != len(want) {
		t.Errorf("expected exactly %d subcommands, got %d", len(want), len(root.Commands()))
	}
}

func TestRootCmdHasVerboseFlag(t *testing.T) {
	root := NewRootCmd()
	if f := root.PersistentFlags().Lookup("verbose"); f == nil {
		t.Fatal("expected a persistent --verbose flag")
	}
}
