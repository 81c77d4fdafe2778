// Command ailabber is the CLI client for the ailabber task broker.
package main

import (
	"fmt"
	"os"

	"github.com/lcpu-club/ailabber/cmd/ailabber/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
