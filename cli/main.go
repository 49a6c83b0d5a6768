// Package main implements avfarmctl, the operator CLI for the coordinator's
// admin and status surface.
package main

import (
	"fmt"
	"os"

	"github.com/avfarm/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
