package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/xyzplot/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the xyzplot version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
