// Mergetrain coordinates concurrent coding agents across isolated JJ
// workspaces: a merge-train queue, a workspace state machine, a
// transactional spawn/rollback pipeline, and a stack-dependency graph, all
// backed by a single embedded SQLite store.
package main

import (
	"os"
	"runtime/debug"

	"github.com/agentrain/mergetrain/internal/cli"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}

	os.Exit(cli.ExitCodeFor(cli.Execute(version)))
}
