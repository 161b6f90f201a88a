// internal/cli/ui.go
package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/arc-language/benpak"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// progressPrinter serializes event output from concurrent jobs
type progressPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	step float64
	last map[string]float64
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	step := 0.25
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		step = 0.10
	}
	return &progressPrinter{out: out, step: step, last: make(map[string]float64)}
}

func (p *progressPrinter) print(ev benpak.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := cyan(ev.PackageID)
	switch ev.State {
	case benpak.StatePending:
		fmt.Fprintf(p.out, "%s queued\n", id)
	case benpak.StateDownloading:
		prev, seen := p.last[ev.PackageID]
		if seen && ev.Progress < 1 && ev.Progress-prev < p.step {
			return
		}
		p.last[ev.PackageID] = ev.Progress
		fmt.Fprintf(p.out, "%s downloading %3.0f%%\n", id, ev.Progress*100)
	case benpak.StateExtracting:
		fmt.Fprintf(p.out, "%s extracting\n", id)
	case benpak.StateFinalizing:
		fmt.Fprintf(p.out, "%s finalizing\n", id)
	case benpak.StateSucceeded:
		res := ev.Result
		if res.NoOp {
			fmt.Fprintf(p.out, "%s %s is already installed\n", green("✓"), bold(ev.PackageID+" "+res.Version))
			return
		}
		fmt.Fprintf(p.out, "%s installed %s\n", green("✓"), bold(ev.PackageID+" "+res.Version))
		for _, w := range res.Warnings {
			fmt.Fprintf(p.out, "  %s %s\n", yellow("warning:"), w)
		}
	case benpak.StateFailed:
		fmt.Fprintf(p.out, "%s %s failed (%s): %s\n", red("✗"), bold(ev.PackageID), ev.Kind, ev.Detail)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
