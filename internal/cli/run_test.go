package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/eventq/internal/config"
	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/journal"
	"github.com/dshills/eventq/internal/queue"
)

func TestRunOptions_Apply(t *testing.T) {
	cfg := config.Default()
	opts := &RunOptions{
		RootOptions: &RootOptions{},
		ScriptPath:  "main.lua",
		MetricsAddr: ":9464",
		JournalPath: "events.db",
		RelayURL:    "nats://127.0.0.1:4222",
	}
	require.NoError(t, opts.apply(cfg))
	assert.Equal(t, "main.lua", cfg.Script.Path)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)
	assert.Equal(t, "events.db", cfg.Journal.Path)
	assert.True(t, cfg.Relay.Enabled())

	cfg.Queue.Capacity = 0
	err := (&RunOptions{RootOptions: &RootOptions{}}).apply(cfg)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestFrameserverCommand(t *testing.T) {
	cmd, err := frameserverCommand(config.FrameserverConfig{
		Name:    "demo",
		Command: []string{SelfCommand, "frameserver", "--fps", "30"},
		Env:     []string{"DEMO=1"},
	})
	require.NoError(t, err)

	self, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, self, cmd.Path)
	assert.Equal(t, []string{self, "frameserver", "--fps", "30"}, cmd.Args)
	assert.Contains(t, cmd.Env, "DEMO=1")

	cmd, err = frameserverCommand(config.FrameserverConfig{Command: []string{"/bin/true"}})
	require.NoError(t, err)
	assert.Equal(t, "/bin/true", cmd.Path)
}

func TestQuitOnInterrupt(t *testing.T) {
	main := queue.New(4)
	d := quitOnInterrupt(main)
	ctx := context.Background()

	press := func(sym uint16) event.Event {
		return event.New(event.IOKeybPress, event.IO{
			Device: event.DeviceKeyboard,
			Input:  event.Translated{Active: true, Keysym: sym},
		})
	}
	require.NoError(t, d.Dispatch(ctx, press('q')))
	require.NoError(t, d.Dispatch(ctx, event.New(event.TimerPulse, event.Timer{Pulse: 1})))
	assert.Zero(t, main.Pending())

	require.NoError(t, d.Dispatch(ctx, press(uint16(tcell.KeyCtrlC))))
	ev, ok := main.Poll()
	require.True(t, ok)
	assert.Equal(t, event.CategorySystem, ev.Category())
	assert.Equal(t, event.SystemExit, ev.Kind)
}

func TestRunService_ScriptShutdown(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "main.lua")
	require.NoError(t, os.WriteFile(scriptPath, []byte(`
function clock_pulse(tick, pulse)
  if pulse >= 3 then shutdown() end
end
`), 0o600))
	dbPath := filepath.Join(dir, "events.db")

	opts := &RunOptions{
		RootOptions: &RootOptions{LogLevel: "warn"},
		ScriptPath:  scriptPath,
		JournalPath: dbPath,
		MetricsAddr: "127.0.0.1:0",
		Headless:    true,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, runService(ctx, opts))
	require.NoError(t, ctx.Err(), "stopped by the deadline instead of the script")

	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer j.Close()

	pulses, err := j.Count(context.Background(), journal.Filter{Categories: event.CategoryTimer})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pulses, int64(3))

	exits, err := j.Count(context.Background(), journal.Filter{Categories: event.CategorySystem})
	require.NoError(t, err)
	assert.Equal(t, int64(1), exits)
}

func TestRunService_BadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.lua")
	require.NoError(t, os.WriteFile(path, []byte("function ("), 0o600))

	err := runService(context.Background(), &RunOptions{
		RootOptions: &RootOptions{LogLevel: "error"},
		ScriptPath:  path,
		Headless:    true,
	})
	assert.Equal(t, ExitCommandError, ExitCode(err))
}
