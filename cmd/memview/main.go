package main

import (
	"os"

	"github.com/go-memview/memview/cmd/memview/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
