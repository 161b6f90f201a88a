// internal/cli/root.go
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/arc-language/benpak"
	"github.com/arc-language/benpak/pkg/core"
	"github.com/arc-language/benpak/pkg/logging"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds the global flags and lazily built collaborators of one invocation
type app struct {
	cfgFile   string
	debug     bool
	verbosity int
	noColor   bool

	config  *core.Config
	logger  zerolog.Logger
	manager *benpak.Manager

	out io.Writer
	err io.Writer
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	a := &app{out: os.Stdout, err: os.Stderr}

	rootCmd := &cobra.Command{
		Use:   "benpak",
		Short: "User-space application installer",
		Long: `benpak - install desktop applications without root

Downloads tarballs, .deb packages and AppImages into your home directory,
tracks installed versions and creates launchers.`,
		Version:           benpak.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if a.manager != nil {
				err = a.manager.Close()
			}
			if cerr := logging.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/benpak/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")
	rootCmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		newInstallCmd(a),
		newRemoveCmd(a),
		newListCmd(a),
		newInfoCmd(a),
		newSearchCmd(a),
		newRunCmd(a),
		newConfigCmd(a),
		newUpdatesCmd(a),
		newSyncCmd(a),
		newVersionCmd(a),
	)
	return rootCmd
}

// Execute runs the CLI until completion or SIGINT
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.Close()

	cmd := NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	a.out = cmd.OutOrStdout()
	a.err = cmd.ErrOrStderr()
	if a.noColor {
		color.NoColor = true
	}

	cfg, err := core.LoadConfig(a.cfgFile)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Debug = true
	}
	a.config = cfg

	a.logger = logging.Setup(logging.Options{
		Verbosity: a.verbosity,
		Debug:     cfg.Debug,
		StateDir:  cfg.StateDirectory,
		Console:   a.err,
		NoColor:   color.NoColor,
	})
	return nil
}

// open builds the manager on first use so that commands like version never
// touch the filesystem
func (a *app) open(cmd *cobra.Command) (*benpak.Manager, error) {
	if a.manager != nil {
		return a.manager, nil
	}
	m, err := benpak.NewManager(cmd.Context(), a.config, &benpak.Options{Logger: a.logger})
	if err != nil {
		return nil, err
	}
	a.manager = m
	return m, nil
}
