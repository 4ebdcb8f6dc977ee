package cmd

import "testing"

func TestNewRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "validate"} {
		if !names[want] {
			t.Fatalf("root command missing %q subcommand", want)
		}
	}
}
