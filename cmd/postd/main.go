// Command postd serves POST /posts on a unix socket backed by SQLite.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/postd/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
