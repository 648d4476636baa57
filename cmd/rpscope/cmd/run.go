package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rpscope/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Acquire continuously and serve the monitor.",
	Long: "`run` starts the continuous acquisition loop and serves the " +
		"monitor until interrupted. The monitor can pause, resume, stop " +
		"and restart the loop.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b := session.MakeBuilder()

		port := cfg.MonitorPort
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		b = b.WithMonitorPort(port)

		if open, _ := cmd.Flags().GetBool("open-browser"); open {
			b = b.WithBrowser()
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

		s.Scope().RunContinuous()

		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)

		go func() {
			<-interrupts
			logger.Info().Msg("interrupted, stopping")
			s.Quit()
		}()

		return s.Serve()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Int("port", 0, "Monitor port; 0 picks a free one.")
	runCmd.Flags().Bool("open-browser", false, "Open the monitor page.")
}
