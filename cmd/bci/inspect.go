package main

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
)

func newInspectCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Validate pipeline definition and dump it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDefinition(path)
			if err != nil {
				return err
			}
			cfg := spew.ConfigState{
				Indent:                  "  ",
				DisablePointerAddresses: true,
				DisableCapacities:       true,
				SortKeys:                true,
			}
			cfg.Fdump(cmd.OutOrStdout(), d)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "pipeline", "p", "", "pipeline definition file, default pipeline if empty")
	return cmd
}
