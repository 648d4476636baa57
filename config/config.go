// Package config reads the run settings of rpscope from the environment.
//
// Settings come from RPSCOPE_* environment variables. A .env file, if
// given, fills in the variables that are not already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Environment variables understood by Load.
const (
	EnvDecimation         = "RPSCOPE_DECIMATION"
	EnvTriggerSource      = "RPSCOPE_TRIGGER_SOURCE"
	EnvTriggerDelay       = "RPSCOPE_TRIGGER_DELAY"
	EnvTraceAverage       = "RPSCOPE_TRACE_AVERAGE"
	EnvRollingMode        = "RPSCOPE_ROLLING_MODE"
	EnvMonitorPort        = "RPSCOPE_MONITOR_PORT"
	EnvRecordDB           = "RPSCOPE_RECORD_DB"
	EnvLogLevel           = "RPSCOPE_LOG_LEVEL"
	EnvClickHouseAddr     = "RPSCOPE_CLICKHOUSE_ADDR"
	EnvClickHouseDB       = "RPSCOPE_CLICKHOUSE_DB"
	EnvClickHouseUser     = "RPSCOPE_CLICKHOUSE_USER"
	EnvClickHousePassword = "RPSCOPE_CLICKHOUSE_PASSWORD"
)

// ErrInvalid is wrapped by every error about a malformed setting.
var ErrInvalid = errors.New("config: invalid setting")

// Config holds the run settings. Zero values mean "keep the default".
type Config struct {
	Decimation    int
	TriggerSource string
	TriggerDelay  float64
	TraceAverage  int
	RollingMode   bool
	MonitorPort   int
	RecordDB      string
	LogLevel      zerolog.Level

	ClickHouseAddr     string
	ClickHouseDB       string
	ClickHouseUser     string
	ClickHousePassword string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		TraceAverage: 1,
		RollingMode:  true,
		LogLevel:     zerolog.InfoLevel,
		ClickHouseDB: "default",
	}
}

// Load reads the settings from the environment. Each envFile that exists is
// loaded first without overriding variables already set.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}

		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	return FromMap(environ())
}

// FromMap reads the settings from a map of variables.
func FromMap(env map[string]string) (Config, error) {
	c := Default()
	p := parser{env: env}

	p.int(EnvDecimation, &c.Decimation)
	p.str(EnvTriggerSource, &c.TriggerSource)
	p.float(EnvTriggerDelay, &c.TriggerDelay)
	p.int(EnvTraceAverage, &c.TraceAverage)
	p.bool(EnvRollingMode, &c.RollingMode)
	p.int(EnvMonitorPort, &c.MonitorPort)
	p.str(EnvRecordDB, &c.RecordDB)
	p.level(EnvLogLevel, &c.LogLevel)
	p.str(EnvClickHouseAddr, &c.ClickHouseAddr)
	p.str(EnvClickHouseDB, &c.ClickHouseDB)
	p.str(EnvClickHouseUser, &c.ClickHouseUser)
	p.str(EnvClickHousePassword, &c.ClickHousePassword)

	if p.err != nil {
		return Config{}, p.err
	}

	return c, nil
}

// ClickHouseHostPort splits ClickHouseAddr. The port defaults to 9000.
func (c Config) ClickHouseHostPort() (string, int, error) {
	host, port, found := strings.Cut(c.ClickHouseAddr, ":")
	if !found {
		return host, 9000, nil
	}

	n, err := strconv.Atoi(port)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %s=%q", ErrInvalid, EnvClickHouseAddr,
			c.ClickHouseAddr)
	}

	return host, n, nil
}

func environ() map[string]string {
	env := make(map[string]string)

	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, "RPSCOPE_") {
			env[k] = v
		}
	}

	return env
}

// parser keeps the first error so that fields can be read in a row.
type parser struct {
	env map[string]string
	err error
}

func (p *parser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}

	v, ok := p.env[key]
	v = strings.TrimSpace(v)

	return v, ok && v != ""
}

func (p *parser) fail(key, v string) {
	p.err = fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.lookup(key); ok {
		*dst = v
	}
}

func (p *parser) int(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v)
		return
	}

	*dst = n
}

func (p *parser) float(key string, dst *float64) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v)
		return
	}

	*dst = f
}

func (p *parser) bool(key string, dst *bool) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v)
		return
	}

	*dst = b
}

func (p *parser) level(key string, dst *zerolog.Level) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}

	l, err := zerolog.ParseLevel(strings.ToLower(v))
	if err != nil {
		p.fail(key, v)
		return
	}

	*dst = l
}
