// Package main provides the entry point for the fsfind CLI.
package main

import (
	"fmt"
	"os"

	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(types.ExitCode(err))
	}
}
