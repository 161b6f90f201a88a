// internal/cli/sync.go
package cli

import (
	"fmt"
	"io"

	"github.com/arc-language/benpak/pkg/logging"
	"github.com/spf13/cobra"
)

func newSyncCmd(a *app) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Update the package catalog",
		Long:  `Fetch the latest package descriptors from the catalog repository.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer logging.LogOperationStart(a.logger, "sync")()

			var progress io.Writer = a.err
			if quiet {
				progress = nil
			}
			fmt.Fprintf(a.out, "Updating catalog from %s...\n", a.config.CatalogRepository)
			report, err := m.Sync(cmd.Context(), progress)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "%s %d added, %d updated", green("✓"), len(report.Added), len(report.Updated))
			if len(report.Skipped) > 0 {
				fmt.Fprintf(a.out, ", %s", yellow(fmt.Sprintf("%d skipped", len(report.Skipped))))
			}
			fmt.Fprintf(a.out, " (%d packages available)\n", m.Catalog().Len())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide git progress")
	return cmd
}
