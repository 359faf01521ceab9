// cmd/pipedeck/main.go
//
// Entry point for the pipedeck CLI. All real wiring lives in internal/cli so
// the command surface stays testable.

package main

import (
	"os"

	"github.com/jcallahan/pipedeck/internal/cli"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	code := cli.Execute(cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}, cli.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})
	os.Exit(code)
}
