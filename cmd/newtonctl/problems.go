package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/newtonls/internal/optimization/objective"
)

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "List the registered problems",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDIM\tSTART\tDESCRIPTION")
		for _, e := range objective.Entries() {
			fmt.Fprintf(w, "%s\t%d\t%v\t%s\n", e.Name, e.Dim, e.Start, e.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(problemsCmd)
}
