package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pipelined.dev/bci/assembly"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show stage types available in pipeline definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := assembly.DefaultRegistry()
			for _, name := range r.Types() {
				schema, _ := r.Schema(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", name, schema)
			}
			return nil
		},
	}
}
