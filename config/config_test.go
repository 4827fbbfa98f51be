package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConf(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ftpserver.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	return path
}

const validConf = `[SERVER]
Host = 127.0.0.1
Port = 2121
PassivePortRange = 50000,50100
SessionTimeout = 300
LoginTimeout = 30
DataTimeout = 10
RootDirectory = /srv/ftp
AllowAnonymous = true
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConf(t, validConf))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, 2121, cfg.Port)
	require.Equal(t, "127.0.0.1:2121", cfg.ListenAddr())
	require.Equal(t, PortRange{Start: 50000, End: 50100}, cfg.PassivePortRange)
	require.Equal(t, 300*time.Second, cfg.SessionTimeout)
	require.Equal(t, 30*time.Second, cfg.LoginTimeout)
	require.Equal(t, 10*time.Second, cfg.DataTimeout)
	require.Equal(t, "/srv/ftp", cfg.RootDirectory)
	require.True(t, cfg.AllowAnonymous)
	require.False(t, cfg.Metrics.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadMissingSection(t *testing.T) {
	_, err := Load(writeConf(t, "[OTHER]\nFoo = 1\n"))
	require.ErrorIs(t, err, ErrConfiguration)
	require.Contains(t, err.Error(), "[SERVER]")
}

func TestLoadMissingOption(t *testing.T) {
	conf := `[SERVER]
Host = 127.0.0.1
Port = 2121
`
	_, err := Load(writeConf(t, conf))
	require.ErrorIs(t, err, ErrConfiguration)
	// The diagnostic names the first missing option
	require.Contains(t, err.Error(), "PassivePortRange")
}

func TestLoadBadValues(t *testing.T) {
	for name, mangle := range map[string]string{
		"port":      "Port = twentyone",
		"range":     "PassivePortRange = 50100,50000",
		"rangeOne":  "PassivePortRange = 50000",
		"timeout":   "SessionTimeout = -5",
		"anonymous": "AllowAnonymous = maybe",
	} {
		conf := validConf + "\n" + mangle + "\n"

		_, err := Load(writeConf(t, conf))
		require.ErrorIs(t, err, ErrConfiguration, name)
	}
}

func TestLoadMetricsSection(t *testing.T) {
	conf := validConf + `
[METRICS]
Enabled = true
Address = 127.0.0.1:9999
`
	cfg, err := Load(writeConf(t, conf))
	require.NoError(t, err)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "127.0.0.1:9999", cfg.Metrics.Address)
}

func TestRootDirectoryMadeAbsolute(t *testing.T) {
	conf := `[SERVER]
Host = 127.0.0.1
Port = 2121
PassivePortRange = 50000,50100
SessionTimeout = 300
LoginTimeout = 30
DataTimeout = 10
RootDirectory = ./ftp
AllowAnonymous = false
`
	cfg, err := Load(writeConf(t, conf))
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(cfg.RootDirectory))
}
