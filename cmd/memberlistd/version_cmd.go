package main

import (
	"fmt"

	"github.com/spf13/cobra"

	memberlists "github.com/raniellyferreira/memberlists"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the memberlistd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := memberlists.VersionInfo()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "memberlistd %s\n", info["version"])
			return err
		},
	}
	return cmd
}
