package main

import (
	"os"

	"github.com/fwcore/doubleratchet/cmd/ratchetsim/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
