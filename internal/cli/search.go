// internal/cli/search.go
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Search the catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open(cmd)
			if err != nil {
				return err
			}
			results := m.Catalog().Search(strings.Join(args, " "))
			if len(results) == 0 {
				fmt.Fprintln(a.out, "No packages found.")
				return nil
			}
			for _, d := range results {
				fmt.Fprintf(a.out, "%s  %s\n", bold(d.ID), d.Description)
			}
			return nil
		},
	}
}
