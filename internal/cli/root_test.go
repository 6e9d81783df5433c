package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/eventq/internal/config"
	"github.com/dshills/eventq/internal/queue"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(BuildInfo{Version: "1.2.3", Commit: "abc", Date: "2024-01-01"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(BuildInfo{})
	require.NotNil(t, cmd)
	assert.Equal(t, "eventq", cmd.Use)
	assert.Contains(t, cmd.Long, "frameserver")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(BuildInfo{})
	for _, path := range [][]string{
		{"run"},
		{"frameserver"},
		{"journal", "dump"},
		{"journal", "count"},
		{"journal", "truncate"},
		{"version"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	fs, _, err := cmd.Find([]string{"frameserver"})
	require.NoError(t, err)
	assert.True(t, fs.Hidden)
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand(BuildInfo{})

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-format"))
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand(BuildInfo{})
	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"script", "metrics-addr", "journal", "relay-url", "headless"} {
		assert.NotNil(t, run.Flags().Lookup(name), "flag %s", name)
	}
}

func TestFrameserverPeerTimeoutDefault(t *testing.T) {
	cmd := NewRootCommand(BuildInfo{})
	fs, _, err := cmd.Find([]string{"frameserver"})
	require.NoError(t, err)

	flag := fs.Flags().Lookup("peer-timeout")
	require.NotNil(t, flag)
	assert.Equal(t, queue.DefaultTimeout.String(), flag.DefValue)
	assert.Equal(t, queue.DefaultTimeout, config.Default().Queue.PeerTimeout)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "eventq 1.2.3 (commit abc, built 2024-01-01)\n", out)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitCommandError, "bad flag", errors.New("cause"))
	assert.Equal(t, ExitCommandError, ExitCode(wrapped))
	assert.Equal(t, "bad flag: cause", wrapped.Error())
	assert.Equal(t, "cause", errors.Unwrap(wrapped).Error())
}
