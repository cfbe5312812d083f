package main

import (
	"fmt"
	"os"

	"github.com/roach88/optisync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	code := cli.GetExitCode(err)
	// subcommands set SilenceErrors
	if code == cli.ExitCommandError {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(code)
}
