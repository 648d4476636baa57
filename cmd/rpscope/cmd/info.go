package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rpscope/scope"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the timing of every decimation and the trigger sources.",
	Run: func(cmd *cobra.Command, _ []string) {
		printInfo(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printInfo(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "DECIMATION\tSAMPLING TIME (s)\tDURATION (s)\tROLLING")

	for _, d := range scope.Decimations() {
		duration := scope.DurationFor(d)
		fmt.Fprintf(w, "%d\t%.6g\t%.6g\t%v\n",
			d, scope.SamplingTimeFor(d), duration,
			duration > scope.RollingModeMinDuration)
	}

	w.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Trigger sources:")

	for _, s := range scope.TriggerSources() {
		fmt.Fprintf(out, "  %s\n", s)
	}
}
