package cmd

import (
	"testing"
)

func findCommand(t *testing.T, name string) bool {
	t.Helper()
	for _, c := range rootCmd.Commands() {
		if c.Name() == name {
			return true
		}
	}
	return false
}

func TestRootCommand_RegistersAllSubcommands(t *testing.T) {
	for _, name := range []string{"init", "item", "household", "user", "sync", "watch"} {
		if !findCommand(t, name) {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestSyncCommand_Flags(t *testing.T) {
	for _, name := range []string{"push", "pull", "status"} {
		if syncCmd.Flags().Lookup(name) == nil {
			t.Errorf("sync flag %q not defined", name)
		}
	}
}

func TestFlagNormalization_CaseInsensitive(t *testing.T) {
	// --PUSH resolves to --push through the global normalization func.
	norm := rootCmd.GlobalNormalizationFunc()
	if norm == nil {
		t.Fatal("no global normalization func")
	}
	if got := norm(syncCmd.Flags(), "PUSH"); string(got) != "push" {
		t.Fatalf("normalized name: got %q, want %q", got, "push")
	}
}

func TestSetVersion_WiresCobraVersion(t *testing.T) {
	SetVersion("1.2.3")
	if rootCmd.Version != "1.2.3" {
		t.Fatalf("root version: got %q", rootCmd.Version)
	}
}
