package main

import (
	"os"

	"github.com/opsgate/opsgate/cmd/opsgate/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
