// internal/cli/install.go
package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/arc-language/benpak"
	"github.com/arc-language/benpak/pkg/catalog"
	"github.com/arc-language/benpak/pkg/logging"
	"github.com/spf13/cobra"
)

func newInstallCmd(a *app) *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "install [package...]",
		Short: "Install one or more packages",
		Long: `Install packages from the catalog. Packages are installed concurrently;
downloads are limited by max_concurrent_downloads.

Examples:
  benpak install discord
  benpak install vscode obs-studio blender
  benpak install --file ./myapp.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(files) == 0 {
				return fmt.Errorf("no packages given")
			}
			m, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer logging.LogOperationStart(a.logger, "install")()

			var (
				jobs   []*benpak.Job
				failed int
			)
			for _, id := range args {
				job, err := m.Install(cmd.Context(), id)
				if err != nil {
					fmt.Fprintf(a.out, "%s %s: %v\n", red("✗"), bold(id), err)
					failed++
					continue
				}
				jobs = append(jobs, job)
			}
			for _, path := range files {
				desc, err := loadDescriptorFile(path)
				if err != nil {
					fmt.Fprintf(a.out, "%s %s: %v\n", red("✗"), bold(path), err)
					failed++
					continue
				}
				job, err := m.InstallDescriptor(cmd.Context(), desc)
				if err != nil {
					fmt.Fprintf(a.out, "%s %s: %v\n", red("✗"), bold(desc.ID), err)
					failed++
					continue
				}
				jobs = append(jobs, job)
			}

			failed += follow(a, jobs)
			if total := len(args) + len(files); failed > 0 {
				return fmt.Errorf("%d of %d packages failed", failed, total)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "install from a descriptor file (json, yaml or toml)")
	return cmd
}

// follow prints every job's events until all reach a terminal state and
// returns the number that failed
func follow(a *app, jobs []*benpak.Job) int {
	printer := newProgressPrinter(a.out)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range job.Events() {
				printer.print(ev)
				if ev.State == benpak.StateFailed {
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return failed
}

func loadDescriptorFile(path string) (*benpak.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	desc, err := catalog.Parse(path, data)
	if err != nil {
		return nil, err
	}
	desc.Source = path
	return desc, nil
}
