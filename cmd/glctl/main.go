package main

import (
	"os"

	"github.com/odyssey-erp/odyssey-gl/cmd/odyssey/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
