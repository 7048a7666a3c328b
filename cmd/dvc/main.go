package main

import (
	"fmt"
	"os"

	"github.com/efiop/dvc/internal/cmd"
)

// Set via -ldflags at build time.
var version = "dev"

func main() {
	cmd.SetVersion(version)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cmd.FormatError(err))
		os.Exit(1)
	}
}
