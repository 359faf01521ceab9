package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// BuildInfo carries version metadata stamped at link time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// IOStreams groups the process streams so tests can substitute buffers.
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// Options holds the flag values for the root command.
type Options struct {
	ConfigPath string
	LogPath    string
	Headless   bool
}

// AppContext bundles everything the commands need.
type AppContext struct {
	Build BuildInfo
	IO    IOStreams
	Opts  Options
}

// Execute runs the pipedeck CLI and returns a process exit code.
func Execute(build BuildInfo, streams IOStreams) int {
	app := &AppContext{Build: build, IO: streams}
	root := newRootCommand(app)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(streams.ErrOut, "ERROR:", err)
		return 1
	}
	return 0
}

func newRootCommand(app *AppContext) *cobra.Command {
	showVersion := false

	root := &cobra.Command{
		Use:   "pipedeck",
		Short: "Watch a turn-based pipeline progress stage by stage",
		Long: "pipedeck runs a multi-stage turn progression engine and a terminal\n" +
			"dashboard over it. Stages, actors, and tick cadence come from\n" +
			".pipedeck/config.yaml in the working directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(app)
				return nil
			}
			return runApp(app)
		},
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	defaultConfigPath := os.Getenv("PIPEDECK_CONFIG")
	root.Flags().StringVarP(&app.Opts.ConfigPath, "config", "c", defaultConfigPath, "Path to config file")
	root.Flags().StringVar(&app.Opts.LogPath, "log", "", "Path to the run log file (default .pipedeck/logs/pipedeck.log)")
	root.Flags().BoolVar(&app.Opts.Headless, "headless", false, "Run the engine and bridge without the dashboard")
	root.Flags().BoolVar(&showVersion, "version", false, "Print version info")

	return root
}

func printVersion(app *AppContext) {
	fmt.Fprintf(app.IO.Out, "pipedeck %s (commit %s, built %s)\n", app.Build.Version, app.Build.Commit, app.Build.Date)
}
