package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ParseArgs([]string{
		"--db-path", filepath.Join(dir, "l.db"),
		"--settings-path", filepath.Join(dir, "settings.yaml"),
		"--install-dir", filepath.Join(dir, "client"),
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:17420", cfg.Server.Address)
	assert.Equal(t, "java", cfg.Runtime.Executable)
	assert.Equal(t, "-version", cfg.Runtime.VersionFlag)
	assert.Equal(t, 50*time.Millisecond, cfg.Install.StepDelay)
	assert.Equal(t, time.Second, cfg.Install.InstallDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Install.UninstallDelay)
	assert.Equal(t, 27016, cfg.A2S.Port)
	assert.Empty(t, cfg.A2S.Host)
	assert.Empty(t, cfg.GeoIP.Path)
}

func TestParseArgs_ResolvesEmptyPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := ParseArgs(nil)
	require.NoError(t, err)

	assert.Equal(t, "launcherd.db", filepath.Base(cfg.Storage.Path))
	assert.Equal(t, "settings.yaml", filepath.Base(cfg.Settings.Path))
	assert.Equal(t, "client", filepath.Base(cfg.Install.Dir))
	assert.Equal(t, filepath.Dir(cfg.Storage.Path), filepath.Dir(cfg.Settings.Path))
}

func TestParseArgs_Invalid(t *testing.T) {
	dir := t.TempDir()
	base := []string{
		"--db-path", filepath.Join(dir, "l.db"),
		"--settings-path", filepath.Join(dir, "s.yaml"),
		"--install-dir", dir,
	}

	tests := []struct {
		name string
		args []string
	}{
		{name: "bad a2s port", args: []string{"--a2s-host", "127.0.0.1", "--a2s-port", "70000"}},
		{name: "negative delay", args: []string{"--install-step-delay=-1s"}},
		{name: "zero rate window", args: []string{"--rate-limit-window", "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(append(append([]string{}, base...), tt.args...))
			assert.Error(t, err)
		})
	}
}
