package main

import (
	"os"

	"github.com/switchboard-dev/switchboard/cmd/switchboard"
)

func main() {
	if err := switchboard.Execute(); err != nil {
		os.Exit(1)
	}
}
