// internal/cli/version.go
package cli

import (
	"fmt"
	"runtime"

	"github.com/arc-language/benpak"
	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "benpak version %s\n", benpak.Version)
			fmt.Fprintf(a.out, "%s/%s, %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}
