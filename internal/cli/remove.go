// internal/cli/remove.go
package cli

import (
	"fmt"

	"github.com/arc-language/benpak/pkg/logging"
	"github.com/spf13/cobra"
)

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove [package...]",
		Aliases: []string{"uninstall", "rm"},
		Short:   "Remove installed packages",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer logging.LogOperationStart(a.logger, "remove")()

			failed := 0
			for _, id := range args {
				if err := m.Uninstall(cmd.Context(), id); err != nil {
					fmt.Fprintf(a.out, "%s %s: %v\n", red("✗"), bold(id), err)
					failed++
					continue
				}
				fmt.Fprintf(a.out, "%s removed %s\n", green("✓"), bold(id))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d packages could not be removed", failed, len(args))
			}
			return nil
		},
	}
}
