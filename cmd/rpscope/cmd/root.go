// Package cmd provides the command-line interface for rpscope.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/rpscope/config"
	"github.com/sarchlab/rpscope/datarecording"
	"github.com/sarchlab/rpscope/scope"
	"github.com/sarchlab/rpscope/session"
)

var (
	cfg    config.Config
	logger zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rpscope",
	Short: "rpscope acquires waveforms from a two-channel scope module.",
	Long: `rpscope acquires waveforms from a two-channel scope module. ` +
		`Without hardware it drives a simulated device. Settings come from ` +
		`RPSCOPE_* environment variables, a .env file and the flags below, ` +
		`in increasing priority.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("env-file", ".env", "File with RPSCOPE_* settings.")
	f.String("log-level", "", "Log level (debug, info, warn, error).")
	f.Int("decimation", 0, "Decimation factor, a power of two up to 65536.")
	f.String("source", "", "Trigger source.")
	f.Float64("delay", 0, "Trigger delay in seconds.")
	f.Int("average", 0, "Number of captures to average.")
	f.Bool("rolling", true, "Use the rolling display for long durations.")
	f.String("record", "", "Name of the SQLite recording.")
	f.Bool("no-record", false, "Do not record captures.")
	f.String("clickhouse", "", "Record into ClickHouse at host:port.")
}

// loadSettings reads the environment and lets changed flags override it.
func loadSettings(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")

	var err error

	cfg, err = config.Load(envFile)
	if err != nil {
		return err
	}

	f := cmd.Flags()

	if f.Changed("log-level") {
		s, _ := f.GetString("log-level")

		cfg.LogLevel, err = zerolog.ParseLevel(s)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", s, err)
		}
	}

	if f.Changed("decimation") {
		cfg.Decimation, _ = f.GetInt("decimation")
	}

	if f.Changed("source") {
		cfg.TriggerSource, _ = f.GetString("source")
	}

	if f.Changed("delay") {
		cfg.TriggerDelay, _ = f.GetFloat64("delay")
	}

	if f.Changed("average") {
		cfg.TraceAverage, _ = f.GetInt("average")
	}

	if f.Changed("rolling") {
		cfg.RollingMode, _ = f.GetBool("rolling")
	}

	if f.Changed("record") {
		cfg.RecordDB, _ = f.GetString("record")
	}

	if f.Changed("clickhouse") {
		cfg.ClickHouseAddr, _ = f.GetString("clickhouse")
	}

	logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
	}).Level(cfg.LogLevel).With().Timestamp().Logger()

	return nil
}

// sessionBuilder applies the recording settings to b.
func sessionBuilder(cmd *cobra.Command, b session.Builder) (session.Builder, error) {
	b = b.WithLogger(logger)

	if noRecord, _ := cmd.Flags().GetBool("no-record"); noRecord {
		return b.WithoutRecording(), nil
	}

	if cfg.ClickHouseAddr != "" {
		host, port, err := cfg.ClickHouseHostPort()
		if err != nil {
			return b, err
		}

		return b.WithClickHouse(datarecording.ClickHouseOptions{
			Host:     host,
			Port:     port,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		}), nil
	}

	if cfg.RecordDB != "" {
		b = b.WithOutputFileName(cfg.RecordDB)
	}

	return b, nil
}

// applyScopeSettings configures the scope from cfg and notes the settings
// in the recording.
func applyScopeSettings(s *session.Session) error {
	sc := s.Scope()

	if cfg.Decimation != 0 {
		if err := sc.SetDecimation(cfg.Decimation); err != nil {
			return err
		}
	}

	if cfg.TriggerSource != "" {
		err := sc.SetTriggerSource(scope.TriggerSource(cfg.TriggerSource))
		if err != nil {
			return err
		}
	}

	if err := sc.SetTriggerDelay(cfg.TriggerDelay); err != nil {
		return err
	}

	if err := sc.SetTraceAverage(cfg.TraceAverage); err != nil {
		return err
	}

	sc.SetRollingMode(cfg.RollingMode)

	c := sc.Config()
	s.Note("Trigger Source", string(c.Source))
	s.Note("Decimation", fmt.Sprint(c.Decimation))
	s.Note("Trigger Delay", fmt.Sprint(c.Delay))
	s.Note("Trace Average", fmt.Sprint(sc.TraceAverage()))

	return nil
}
