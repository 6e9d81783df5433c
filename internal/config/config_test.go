package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/eventq/internal/engine"
	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/queue"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "eventq.toml", `
[queue]
capacity = 64
tick = "40ms"
key_repeat = "30ms"
input_mask = ["io", "timer", "frameserver"]

[analog]
rate = 60
smooth = 2

[[frameservers]]
name = "decoder"
command = ["eventq", "frameserver"]
categories = ["frameserver", "external"]
saturation = 0.5

[relay]
url = "nats://127.0.0.1:4222"
publish = ["io"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Queue.Capacity != 64 || cfg.Queue.Tick != 40*time.Millisecond || cfg.Queue.KeyRepeat != 30*time.Millisecond {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.Queue.PeerTimeout != queue.DefaultTimeout {
		t.Errorf("unset peer_timeout lost its default: %v", cfg.Queue.PeerTimeout)
	}
	want := []FrameserverConfig{{
		Name:       "decoder",
		Command:    []string{"eventq", "frameserver"},
		Categories: []string{"frameserver", "external"},
		Saturation: 0.5,
	}}
	if diff := cmp.Diff(want, cfg.Frameservers); diff != "" {
		t.Errorf("frameservers (-want +got):\n%s", diff)
	}
	if !cfg.Relay.Enabled() || cfg.Relay.Prefix != "eventq" {
		t.Errorf("relay = %+v", cfg.Relay)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "eventq.yaml", `
queue:
  capacity: 32
logging:
  level: debug
  format: json
script:
  path: main.lua
  timeout: 100ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.Capacity != 32 || cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Script.Path != "main.lua" || cfg.Script.Timeout != 100*time.Millisecond {
		t.Errorf("script = %+v", cfg.Script)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "eventq.toml", "[queue]\ncapacity = 64\n")
	t.Setenv("EVENTQ_QUEUE_CAPACITY", "512")
	t.Setenv("EVENTQ_QUEUE_KEY_REPEAT", "15ms")
	t.Setenv("EVENTQ_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.Capacity != 512 || cfg.Queue.KeyRepeat != 15*time.Millisecond || cfg.Logging.Level != "warn" {
		t.Errorf("cfg = %+v / %+v", cfg.Queue, cfg.Logging)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("(-default +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unknown key", "a.toml", "[queue]\ncapcity = 3\n", "capcity"},
		{"bad duration", "b.toml", "[queue]\ntick = \"soon\"\n", "decode"},
		{"bad category", "c.yaml", "queue:\n  input_mask: [io, sound]\n", "sound"},
		{"zero capacity", "d.toml", "[queue]\ncapacity = 0\n", "queue.capacity"},
		{"unsupported", "e.json", "{}", "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestValidate_Frameservers(t *testing.T) {
	cfg := Default()
	cfg.Frameservers = []FrameserverConfig{
		{Name: "a", Command: []string{"x"}},
		{Name: "a", Command: []string{"y"}},
		{Name: "", Command: nil, Saturation: 2},
	}
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate() = %v", err)
	}
	for _, want := range []string{"defined twice", "has no name", "has no command", "saturation"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error lacks %q: %v", want, err)
		}
	}
}

func TestSettings(t *testing.T) {
	cfg := Default()
	cfg.Queue.InputMask = []string{"io", "timer"}
	cfg.Queue.OutputMask = nil
	cfg.Queue.KeyRepeat = 20 * time.Millisecond
	cfg.Analog = AnalogConfig{Rate: 30, Smooth: 3}

	got, err := cfg.Settings()
	if err != nil {
		t.Fatal(err)
	}
	want := engine.Settings{
		InputMask:    event.CategoryIO | event.CategoryTimer,
		OutputMask:   event.CategoryAll,
		AnalogRate:   30,
		AnalogSmooth: 3,
		KeyRepeat:    20 * time.Millisecond,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
