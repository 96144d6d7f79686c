// Command pdfgatectl administers API keys and usage for a pdfgate deployment.
package main

import (
	"fmt"
	"os"

	"github.com/kiranshivaraju/pdfgate/cmd/pdfgatectl/cli"
)

// Set via -ldflags at build time
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
