// Package main is the entry point for the valuation CLI.
package main

import (
	"github.com/dealbrain/valuation/cmd/valuation/cmd"
)

func main() {
	cmd.Execute()
}
