package config

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/eventq/internal/config/loader"
	"github.com/dshills/eventq/internal/engine"
	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/queue"
)

// Config is the complete eventq configuration.
type Config struct {
	Queue        QueueConfig         `yaml:"queue" toml:"queue"`
	Analog       AnalogConfig        `yaml:"analog" toml:"analog"`
	Frameservers []FrameserverConfig `yaml:"frameservers" toml:"frameservers"`
	Relay        RelayConfig         `yaml:"relay" toml:"relay"`
	Journal      JournalConfig       `yaml:"journal" toml:"journal"`
	Metrics      MetricsConfig       `yaml:"metrics" toml:"metrics"`
	Script       ScriptConfig        `yaml:"script" toml:"script"`
	Logging      LoggingConfig       `yaml:"logging" toml:"logging"`
}

// QueueConfig shapes the main event context.
type QueueConfig struct {
	Capacity int           `yaml:"capacity" toml:"capacity"`
	Tick     time.Duration `yaml:"tick" toml:"tick"`
	// KeyRepeat is the key repeat period; zero disables repeat.
	KeyRepeat  time.Duration `yaml:"key_repeat" toml:"key_repeat"`
	InputMask  []string      `yaml:"input_mask" toml:"input_mask"`
	OutputMask []string      `yaml:"output_mask" toml:"output_mask"`
	// PeerTimeout bounds waits on a shared context's peer.
	PeerTimeout time.Duration `yaml:"peer_timeout" toml:"peer_timeout"`
}

// AnalogConfig configures analog sample filtering.
type AnalogConfig struct {
	// Rate is the samples per second let through; zero disables limiting.
	Rate   int `yaml:"rate" toml:"rate"`
	Smooth int `yaml:"smooth" toml:"smooth"`
}

// FrameserverConfig describes a frameserver launched at startup.
type FrameserverConfig struct {
	Name    string   `yaml:"name" toml:"name"`
	Command []string `yaml:"command" toml:"command"`
	Env     []string `yaml:"env" toml:"env"`
	Slots   int      `yaml:"slots" toml:"slots"`
	// Categories are moved from the frameserver into the main context.
	Categories []string `yaml:"categories" toml:"categories"`
	Saturation float64  `yaml:"saturation" toml:"saturation"`
}

// RelayConfig configures the NATS bridge.
type RelayConfig struct {
	URL    string `yaml:"url" toml:"url"`
	Name   string `yaml:"name" toml:"name"`
	Prefix string `yaml:"prefix" toml:"prefix"`
	// Publish lists categories forwarded from the main context.
	Publish []string `yaml:"publish" toml:"publish"`
	// Subscribe lists categories received into the main context.
	Subscribe []string `yaml:"subscribe" toml:"subscribe"`
}

// Enabled reports whether a relay URL is configured.
func (r RelayConfig) Enabled() bool { return r.URL != "" }

// JournalConfig configures the event journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// MetricsConfig configures the metrics endpoint. An empty address disables
// it.
type MetricsConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// ScriptConfig configures the script consumer.
type ScriptConfig struct {
	Path    string        `yaml:"path" toml:"path"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			Capacity:    256,
			Tick:        25 * time.Millisecond,
			InputMask:   []string{"all"},
			OutputMask:  []string{"all"},
			PeerTimeout: queue.DefaultTimeout,
		},
		Relay:  RelayConfig{Prefix: "eventq"},
		Script: ScriptConfig{Timeout: 250 * time.Millisecond},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// Load builds the configuration from the defaults, the file at path (if
// path is not empty) and the EVENTQ_* environment, then validates it.
func Load(path string) (*Config, error) {
	var sources []loader.Loader
	if path != "" {
		l, err := loader.ForFile(nil, path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, l)
	}
	sources = append(sources, loader.NewEnvLoader(loader.DefaultEnvPrefix))
	return FromSources(sources...)
}

// FromSources layers the sources over the defaults in order and validates
// the result.
func FromSources(sources ...loader.Loader) (*Config, error) {
	merged := map[string]any{}
	for _, s := range sources {
		m, err := s.Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, m)
	}

	cfg := Default()
	if err := decode(merged, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode applies m over cfg. Keys that are not configuration fields are
// rejected.
func decode(m map[string]any, cfg *Config) error {
	if len(m) == 0 {
		return nil
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	return nil
}

// Validate checks value ranges and category names.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Queue.Capacity < 1 {
		bad("queue.capacity %d must be positive", c.Queue.Capacity)
	}
	if c.Queue.Tick <= 0 {
		bad("queue.tick %s must be positive", c.Queue.Tick)
	}
	if c.Queue.KeyRepeat < 0 {
		bad("queue.key_repeat %s is negative", c.Queue.KeyRepeat)
	}
	if c.Queue.PeerTimeout <= 0 {
		bad("queue.peer_timeout %s must be positive", c.Queue.PeerTimeout)
	}
	for _, m := range []struct {
		name  string
		names []string
	}{
		{"queue.input_mask", c.Queue.InputMask},
		{"queue.output_mask", c.Queue.OutputMask},
		{"relay.publish", c.Relay.Publish},
		{"relay.subscribe", c.Relay.Subscribe},
	} {
		if _, err := event.ParseCategoryMask(m.names); err != nil {
			bad("%s: %v", m.name, err)
		}
	}
	if c.Analog.Rate < 0 || c.Analog.Smooth < 0 {
		bad("analog rate %d and smooth %d must not be negative", c.Analog.Rate, c.Analog.Smooth)
	}

	seen := make(map[string]bool)
	for i, fs := range c.Frameservers {
		switch {
		case fs.Name == "":
			bad("frameservers[%d] has no name", i)
		case seen[fs.Name]:
			bad("frameserver %q defined twice", fs.Name)
		}
		seen[fs.Name] = true
		if len(fs.Command) == 0 {
			bad("frameserver %q has no command", fs.Name)
		}
		if fs.Slots < 0 {
			bad("frameserver %q slots %d is negative", fs.Name, fs.Slots)
		}
		if fs.Saturation < 0 || fs.Saturation > 1 {
			bad("frameserver %q saturation %g outside [0, 1]", fs.Name, fs.Saturation)
		}
		if _, err := event.ParseCategoryMask(fs.Categories); err != nil {
			bad("frameserver %q categories: %v", fs.Name, err)
		}
	}

	if c.Script.Timeout < 0 {
		bad("script.timeout %s is negative", c.Script.Timeout)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		bad("logging.format %q must be json or console", c.Logging.Format)
	}
	return errors.Join(errs...)
}

// Settings returns the engine settings for the main context.
func (c *Config) Settings() (engine.Settings, error) {
	in, err := Mask(c.Queue.InputMask)
	if err != nil {
		return engine.Settings{}, err
	}
	out, err := Mask(c.Queue.OutputMask)
	if err != nil {
		return engine.Settings{}, err
	}
	return engine.Settings{
		InputMask:    in,
		OutputMask:   out,
		AnalogRate:   c.Analog.Rate,
		AnalogSmooth: c.Analog.Smooth,
		KeyRepeat:    c.Queue.KeyRepeat,
	}, nil
}

// Mask parses a category list. An empty list selects every category.
func Mask(names []string) (event.Category, error) {
	if len(names) == 0 {
		return event.CategoryAll, nil
	}
	return event.ParseCategoryMask(names)
}
