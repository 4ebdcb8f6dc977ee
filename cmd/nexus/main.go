// Command nexus runs the Nexus orchestrator against a task plan.
package main

import (
	"fmt"
	"os"

	"github.com/nexusdev/nexus/internal/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
