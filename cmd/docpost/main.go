// Command docpost posts document fields to an HTTP API and writes the
// results back. See "docpost --help".
package main

import (
	"fmt"
	"os"

	"github.com/roach88/docpost/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
