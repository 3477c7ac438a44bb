// Command neutral renders templates from the command line, either with the
// local engine or through a running neutral-ipc engine, and reports render
// stats collected by the engine.
package main

import (
	"os"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
