package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rpscope/scope"
	"github.com/sarchlab/rpscope/session"
)

var singleCmd = &cobra.Command{
	Use:   "single",
	Short: "Run one averaged acquisition and print it.",
	Long: "`single` arms the scope as many times as the average asks for, " +
		"averages the traces and prints a summary per channel. On the " +
		"simulator it runs on virtual time unless --wall is given.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b := session.MakeBuilder().WithoutMonitoring()
		if wall, _ := cmd.Flags().GetBool("wall"); !wall {
			b = b.WithVirtualTime()
		}

		b, err := sessionBuilder(cmd, b)
		if err != nil {
			return err
		}

		s := b.Build()
		defer s.Terminate()

		if err := applyScopeSettings(s); err != nil {
			return err
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")

		c, err := s.Scope().Single(timeout)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(c)
		}

		printSummary(cmd.OutOrStdout(), c)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(singleCmd)
	singleCmd.Flags().Duration("timeout", 10*time.Second,
		"Give up after this long.")
	singleCmd.Flags().Bool("wall", false, "Run on the wall clock.")
	singleCmd.Flags().Bool("json", false, "Print the whole curve as JSON.")
}

type channelSummary struct {
	min, max, mean float64
}

func summarize(samples []float64) channelSummary {
	s := channelSummary{min: math.Inf(1), max: math.Inf(-1)}
	n := 0

	for _, v := range samples {
		if math.IsNaN(v) {
			continue
		}

		s.min = math.Min(s.min, v)
		s.max = math.Max(s.max, v)
		s.mean += v
		n++
	}

	if n == 0 {
		return channelSummary{math.NaN(), math.NaN(), math.NaN()}
	}

	s.mean /= float64(n)

	return s
}

func printSummary(w io.Writer, c scope.Curve) {
	fmt.Fprintf(w, "kind: %s, averages: %d, samples: %d\n",
		c.Kind, c.Averages, len(c.Times))

	if len(c.Times) > 0 {
		fmt.Fprintf(w, "time: %.6g s to %.6g s\n",
			c.Times[0], c.Times[len(c.Times)-1])
	}

	for i, samples := range c.Ch {
		if samples == nil {
			fmt.Fprintf(w, "ch%d: inactive\n", i+1)
			continue
		}

		s := summarize(samples)
		fmt.Fprintf(w, "ch%d: min %.4f V, max %.4f V, mean %.4f V\n",
			i+1, s.min, s.max, s.mean)
	}
}
