// internal/cli/list.go
package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var available bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Long:  `List installed packages, or every package in the catalog with --available.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open(cmd)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if available {
				fmt.Fprintln(tw, "ID\tNAME\tFORMAT\tVERSION")
				for _, d := range m.Catalog().All() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.DisplayName(), d.Kind, orDash(d.Version))
				}
				return nil
			}

			records, err := m.List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(a.out, "No packages installed.")
				return nil
			}
			fmt.Fprintln(tw, "ID\tVERSION\tINSTALLED\tPATH")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.PackageID, r.InstalledVersion,
					r.InstalledAt.Local().Format(time.DateTime), r.InstallPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&available, "available", "a", false, "list catalog packages instead")
	return cmd
}
