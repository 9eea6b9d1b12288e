package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	bind          string
	logFormat     string
	maxConns      int
	maxConnsPerIP int
	port          int
	prefix        string
	profile       bool
	spawnInterval time.Duration
	tlsCert       string
	tlsKey        string
	verbose       bool
	version       bool
	writeTimeout  time.Duration

	logger *zap.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.spawnInterval <= 0 {
		return fmt.Errorf("invalid spawn interval (must be positive): %s", c.spawnInterval)
	}
	if c.writeTimeout <= 0 {
		return fmt.Errorf("invalid write timeout (must be positive): %s", c.writeTimeout)
	}
	if c.maxConns < 0 || c.maxConnsPerIP < 0 {
		return errors.New("connection limits must not be negative")
	}
	if c.logFormat != "console" && c.logFormat != "json" {
		return fmt.Errorf("invalid log format (must be console or json): %q", c.logFormat)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SHROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "shroom",
		Short:         "Real-time multiplayer mushroom smashing, coordinated over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.logFormat, cfg.verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			cfg.logger = logger

			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SHROOM_BIND)")
	fs.StringVar(&cfg.logFormat, "log-format", "console", "log output format, console or json (env: SHROOM_LOG_FORMAT)")
	fs.IntVar(&cfg.maxConns, "max-conns", 1000, "maximum concurrent connections, 0 for unlimited (env: SHROOM_MAX_CONNS)")
	fs.IntVar(&cfg.maxConnsPerIP, "max-conns-per-ip", 20, "maximum concurrent connections per client address, 0 for unlimited (env: SHROOM_MAX_CONNS_PER_IP)")
	fs.IntVarP(&cfg.port, "port", "p", 3001, "port to listen on (env: SHROOM_PORT or PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SHROOM_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SHROOM_PROFILE)")
	fs.DurationVar(&cfg.spawnInterval, "spawn-interval", 1500*time.Millisecond, "time between mushroom spawns in a running game (env: SHROOM_SPAWN_INTERVAL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SHROOM_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SHROOM_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SHROOM_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SHROOM_VERSION)")
	fs.DurationVar(&cfg.writeTimeout, "write-timeout", 5*time.Second, "deadline for a single websocket write (env: SHROOM_WRITE_TIMEOUT)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		if f.Name == "port" {
			_ = v.BindEnv(f.Name, "SHROOM_PORT", "PORT")
		} else {
			_ = v.BindEnv(f.Name)
		}
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("shroom v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
