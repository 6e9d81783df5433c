// Package cli implements the eventq command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/config"
	"github.com/dshills/eventq/internal/logging"
)

// BuildInfo is reported by the version command.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Build      BuildInfo
}

// NewRootCommand creates the root command.
func NewRootCommand(build BuildInfo) *cobra.Command {
	opts := &RootOptions{Build: build}

	cmd := &cobra.Command{
		Use:   "eventq",
		Short: "Event queue and frameserver sync core",
		Long: `eventq runs a main event queue fed by terminal input, frameserver
processes sharing memory-mapped rings and an optional NATS relay, and hands
every event to a Lua script.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a TOML or YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides the configuration")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (console|json), overrides the configuration")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewFrameserverCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))
	return cmd
}

// loadConfig reads the configuration and applies the logging flags.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = o.LogFormat
	}
	return cfg, nil
}

func (o *RootOptions) logger(cfg config.LoggingConfig) (*zap.Logger, error) {
	l, err := logging.New(logging.Options{Level: cfg.Level, Format: cfg.Format, Output: cfg.Output})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	return l, nil
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("eventq %s (commit %s, built %s)", b.Version, b.Commit, b.Date)
}
