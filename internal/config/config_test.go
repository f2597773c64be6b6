package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glasspane/internal/logger"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "Glasspane", cfg.App.Name)
	main, ok := cfg.Window("main")
	require.True(t, ok)
	assert.True(t, main.Transparent)
	assert.Equal(t, float32(1024), main.Width)

	require.Len(t, cfg.Capabilities, 1)
	assert.Contains(t, cfg.Capabilities[0].Permissions, "sql:default")
	assert.NotEmpty(t, cfg.Plugins.Shell.Open)
	assert.Equal(t, "CmdOrCtrl+Q", cfg.Plugins.Shortcut.Quit)
	assert.Equal(t, logger.InfoLevel, cfg.LogLevel())
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"no windows", `
[app]
name = "x"
identifier = "a.b"
version = "1"
`},
		{"duplicate labels", `
[app]
name = "x"
identifier = "a.b"
version = "1"
[[windows]]
label = "main"
[[windows]]
label = "main"
`},
		{"unknown capability window", `
[app]
name = "x"
identifier = "a.b"
version = "1"
[[windows]]
label = "main"
[[capabilities]]
identifier = "c"
windows = ["settings"]
permissions = ["fs:default"]
`},
		{"malformed permission", `
[app]
name = "x"
identifier = "a.b"
version = "1"
[[windows]]
label = "main"
[[capabilities]]
identifier = "c"
windows = ["*"]
permissions = ["fs default"]
`},
		{"bad log level", `
[app]
name = "x"
identifier = "a.b"
version = "1"
[log]
level = "loud"
[[windows]]
label = "main"
`},
		{"repeated migration", `
[app]
name = "x"
identifier = "a.b"
version = "1"
[[windows]]
label = "main"
[[plugins.sql.databases]]
url = "sqlite:a.db"
[[plugins.sql.databases.migrations]]
version = 1
sql = "CREATE TABLE a (id INTEGER)"
[[plugins.sql.databases.migrations]]
version = 1
sql = "CREATE TABLE b (id INTEGER)"
`},
		{"shell arg without value or validator", `
[app]
name = "x"
identifier = "a.b"
version = "1"
[[windows]]
label = "main"
[[plugins.shell.scope]]
name = "echo"
cmd = "echo"
[[plugins.shell.scope.args]]
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glasspane.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
name = "Custom"

[[plugins.shell.scope]]
name = "echo"
cmd = "echo"
allow_any_args = true

[plugins.global_shortcut]
quit = "Alt+F4"
`), 0o644))

	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvJSONLogs, "true")
	t.Setenv(EnvDataDir, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Custom", cfg.App.Name)
	assert.Equal(t, "dev.glasspane.shell", cfg.App.Identifier)
	assert.Equal(t, logger.DebugLevel, cfg.LogLevel())
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, dir, cfg.DataDir)
	require.Len(t, cfg.Plugins.Shell.Scope, 1)
	assert.True(t, cfg.Plugins.Shell.Scope[0].AllowAnyArgs)
	assert.Equal(t, "Alt+F4", cfg.Plugins.Shortcut.Quit)
	_, ok := cfg.Window("main")
	assert.True(t, ok)
}

func TestLoadDebugEnv(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvDebug, "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, logger.DebugLevel, cfg.LogLevel())
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvJSONLogs, "sometimes")

	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "missing.toml"))

	_, err := Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}
