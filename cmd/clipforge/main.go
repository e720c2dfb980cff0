package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// An interrupt-driven shutdown already reported per-job state.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "clipforge:", err)
		}
		os.Exit(1)
	}
}
