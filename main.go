// Package main is the entry point for the netscope packet analysis tool.
package main

import (
	"fmt"
	"os"

	"netscope.xyz/netscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
