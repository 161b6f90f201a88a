// internal/cli/info.go
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info [package]",
		Short: "Show information about a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open(cmd)
			if err != nil {
				return err
			}
			info, err := m.Info(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Package:     %s\n", bold(args[0]))
			if d := info.Descriptor; d != nil {
				fmt.Fprintf(a.out, "Name:        %s\n", d.DisplayName())
				if d.Description != "" {
					fmt.Fprintf(a.out, "Description: %s\n", d.Description)
				}
				fmt.Fprintf(a.out, "Format:      %s\n", d.Kind)
				fmt.Fprintf(a.out, "Resolver:    %s\n", orDash(d.Resolver))
				fmt.Fprintf(a.out, "URL:         %s\n", d.URLPattern)
				if len(d.Categories) > 0 {
					fmt.Fprintf(a.out, "Categories:  %s\n", strings.Join(d.Categories, ", "))
				}
				if d.Source != "" {
					fmt.Fprintf(a.out, "Defined in:  %s\n", d.Source)
				}
			}
			if r := info.Record; r != nil {
				fmt.Fprintf(a.out, "Installed:   %s (%s)\n", green(r.InstalledVersion), r.InstalledAt.Local().Format(time.DateTime))
				fmt.Fprintf(a.out, "Location:    %s\n", r.InstallPath)
				fmt.Fprintf(a.out, "Executable:  %s\n", orDash(r.Executable))
				if r.Launcher != "" {
					fmt.Fprintf(a.out, "Launcher:    %s\n", r.Launcher)
				}
			} else {
				fmt.Fprintf(a.out, "Installed:   %s\n", yellow("no"))
			}
			return nil
		},
	}
}
