package main

import (
	"os"

	"github.com/ppiankov/factpane/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
