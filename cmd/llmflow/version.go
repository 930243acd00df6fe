package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/llmflow"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of llmflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "llmflow version %s\n", llmflow.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
