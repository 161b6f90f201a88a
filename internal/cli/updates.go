// internal/cli/updates.go
package cli

import (
	"fmt"

	"github.com/arc-language/benpak"
	"github.com/arc-language/benpak/pkg/logging"
	"github.com/spf13/cobra"
)

func newUpdatesCmd(a *app) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:     "updates",
		Aliases: []string{"outdated"},
		Short:   "Check installed packages for newer versions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer logging.LogOperationStart(a.logger, "updates")()
			updates, err := m.CheckUpdates(cmd.Context())
			if err != nil {
				return err
			}

			var pending []string
			for _, u := range updates {
				if u.Err != nil {
					fmt.Fprintf(a.out, "%s %s: %v\n", yellow("?"), bold(u.PackageID), u.Err)
					continue
				}
				fmt.Fprintf(a.out, "%s %s %s → %s\n", cyan("↑"), bold(u.PackageID), u.Installed, green(u.Latest))
				pending = append(pending, u.PackageID)
			}
			if len(pending) == 0 {
				fmt.Fprintln(a.out, "Everything is up to date.")
				return nil
			}
			if !apply {
				return nil
			}

			var jobs []*benpak.Job
			for _, id := range pending {
				job, err := m.Install(cmd.Context(), id)
				if err != nil {
					fmt.Fprintf(a.out, "%s %s: %v\n", red("✗"), bold(id), err)
					continue
				}
				jobs = append(jobs, job)
			}
			if failed := follow(a, jobs) + len(pending) - len(jobs); failed > 0 {
				return fmt.Errorf("%d of %d updates failed", failed, len(pending))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "install", false, "install available updates")
	return cmd
}
