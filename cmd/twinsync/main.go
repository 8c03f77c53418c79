// Command twinsync keeps an edge database and a hub database in sync.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/twinsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
