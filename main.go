package main

import (
	"os"

	"github.com/hyper-light/bookmind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
