// internal/cli/run.go
package cli

import (
	"fmt"
	"os/exec"

	"github.com/arc-language/benpak/pkg/logging"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "run [package] [args...]",
		Short: "Launch an installed package",
		Long: `Start the executable of an installed package. Remaining arguments are
passed to it unchanged. Without --wait the program is started in the
background and benpak exits immediately.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open(cmd)
			if err != nil {
				return err
			}
			id := args[0]
			info, err := m.Info(id)
			if err != nil {
				return err
			}
			if !info.Installed() {
				return fmt.Errorf("%s is not installed", id)
			}
			if info.Record.Executable == "" {
				return fmt.Errorf("%s has no recorded executable", id)
			}

			defer logging.LogOperationStart(a.logger, "run "+id)()
			proc := exec.Command(info.Record.Executable, args[1:]...)
			proc.Dir = info.Record.InstallPath
			if !wait {
				if err := proc.Start(); err != nil {
					return fmt.Errorf("starting %s: %w", id, err)
				}
				fmt.Fprintf(a.out, "%s started %s (pid %d)\n", green("✓"), bold(id), proc.Process.Pid)
				return proc.Process.Release()
			}

			proc.Stdin = cmd.InOrStdin()
			proc.Stdout = a.out
			proc.Stderr = a.err
			if err := proc.Start(); err != nil {
				return fmt.Errorf("starting %s: %w", id, err)
			}
			done := make(chan error, 1)
			go func() { done <- proc.Wait() }()
			select {
			case err := <-done:
				return err
			case <-cmd.Context().Done():
				_ = proc.Process.Kill()
				<-done
				return cmd.Context().Err()
			}
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "stay attached and wait for the program to exit")
	cmd.Flags().SetInterspersed(false)
	return cmd
}
