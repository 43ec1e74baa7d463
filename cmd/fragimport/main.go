// fragimport - Mascot and OMSSA identification import tool
package main

import (
	"fmt"
	"os"

	"github.com/compomics/fragmentation-analyzer/cmd/fragimport/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
