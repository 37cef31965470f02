// Command udflow drives, traces and replays unidirectional feature
// pipelines.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/udflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
