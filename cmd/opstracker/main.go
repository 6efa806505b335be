package main

import (
	"os"

	"github.com/opstracker/opstracker-backend-go/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
