package main

import (
	"os"

	"github.com/code-payments/code-vesting/pkg/code/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
