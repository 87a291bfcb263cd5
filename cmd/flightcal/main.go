package main

import (
	"fmt"
	"os"

	"flightcal/internal/cli"
)

var version = "0.1.0-dev"

func main() {
	if err := cli.RootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
