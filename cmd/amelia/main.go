package main

import (
	"os"

	"github.com/amelia-orch/amelia/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
