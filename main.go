package main

import (
	"os"

	"github.com/kairoai/engine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
