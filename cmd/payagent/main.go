package main

import (
	"os"

	"github.com/xraph/payagent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
