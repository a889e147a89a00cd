package main

import (
	"context"
	"testing"

	"github.com/straye-as/device-importer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) config.ImportConfig {
	t.Helper()
	cfg := config.ImportConfig{
		PrimaryDevices:  []string{"test1", "test2"},
		FollowUpDevices: []string{"test3", "test4"},
	}

	cmd := newRootCmd(func(ctx context.Context, opts options, changed func(name string) bool) error {
		applyOptions(&cfg, opts, changed)
		return nil
	})
	cmd.SetArgs(append([]string{}, args...))
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return cfg
}

func TestRootCmd_Defaults(t *testing.T) {
	cfg := execute(t)

	assert.Equal(t, []string{"test1", "test2"}, cfg.PrimaryDevices)
	assert.Equal(t, []string{"test3", "test4"}, cfg.FollowUpDevices)
	assert.False(t, cfg.Wait)
}

func TestRootCmd_Overrides(t *testing.T) {
	cfg := execute(t, "--device", "a", "-d", "b", "--follow-up-device", "c,d", "--wait")

	assert.Equal(t, []string{"a", "b"}, cfg.PrimaryDevices)
	assert.Equal(t, []string{"c", "d"}, cfg.FollowUpDevices)
	assert.True(t, cfg.Wait)
}

func TestRootCmd_RejectsArguments(t *testing.T) {
	cmd := newRootCmd(func(ctx context.Context, opts options, changed func(name string) bool) error {
		return nil
	})
	cmd.SetArgs([]string{"unexpected"})

	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
