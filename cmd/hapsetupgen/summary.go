package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// printSummary writes a human-readable recap to stderr, keeping stdout
// limited to the six lines the spec requires so scripts can capture it
// directly.
func printSummary(setupCode, setupID, payload string) {
	bold := color.New(color.Bold)
	bold.Fprintln(os.Stderr, "Accessory setup info generated:")
	fmt.Fprintf(os.Stderr, "  setup code:    %s\n", color.GreenString(setupCode))
	fmt.Fprintf(os.Stderr, "  setup ID:      %s\n", color.GreenString(setupID))
	fmt.Fprintf(os.Stderr, "  setup payload: %s\n", color.CyanString(payload))
}
