// Command clockmesh runs logical-clock experiments: a small mesh of
// virtual machines ticking at different rates and exchanging Lamport
// timestamps over TCP, plus the tooling to analyze the resulting logs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clockmesh/cmd/clockmesh/ui"
	"clockmesh/internal/logging"
)

func main() {
	var (
		debug   bool
		noColor bool
	)
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "clockmesh",
		Short:         "Logical clock simulation over a TCP mesh",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureColors(noColor)
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(runCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(experimentsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
