// Command fieldctl runs field store scenarios and inspects commit journals.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/fieldstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
