package main

import (
	"os"

	"github.com/solatis/qualify/cmd/qualify/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
