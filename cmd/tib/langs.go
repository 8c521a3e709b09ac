package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var langsCmd = &cobra.Command{
	Use:   "langs",
	Short: "List available languages",
	Args:  cobra.NoArgs,
	Run:   runLangs,
}

func init() {
	rootCmd.AddCommand(langsCmd)
}

func runLangs(cmd *cobra.Command, args []string) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, lang := range registry(cmd).All() {
		fmt.Fprintf(tw, "%s\t%s\n", lang.Name(), lang.Homepage())
	}
	tw.Flush()
}
