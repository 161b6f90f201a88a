// cmd/benpak/main.go
package main

import (
	"os"

	"github.com/arc-language/benpak/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
