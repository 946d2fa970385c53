// Command bci runs EEG pipelines and inspects their definitions.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"pipelined.dev/bci/assembly"
	"pipelined.dev/bci/log"
)

const (
	successExitCode = 0
	errorExitCode   = 1
)

var logger = log.GetLogger()

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "bci",
		Short: "Real-time EEG processing pipelines",
		Long: `bci runs declarative EEG pipelines: device events pass the artifact
tournament and band powers are classified with trained predictors.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newRunCommand(),
		newListCommand(),
		newInspectCommand(),
	)
	return root
}

// loadDefinition returns the definition from file or the default one.
func loadDefinition(path string) (*assembly.Definition, error) {
	if path == "" {
		return assembly.Default(), nil
	}
	return assembly.Load(path)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(errorExitCode)
	}
	os.Exit(successExitCode)
}
