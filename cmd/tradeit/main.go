package main

import (
	"os"

	"github.com/rustyeddy/tradeit/cmd/tradeit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
