// Command portalctl is the operator CLI for the Voxlane back-office API.
package main

import (
	"fmt"
	"os"

	"github.com/voxlane/backoffice/cmd/portalctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
