// Command bloom runs the focus timer device.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bloom/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
