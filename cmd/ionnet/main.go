// ionnet - Ion identity networking for LC-MS feature tables
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/ionnet/cmd/ionnet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
