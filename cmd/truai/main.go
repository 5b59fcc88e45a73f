package main

import (
	"os"

	"github.com/demewebsolutions/truai/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
