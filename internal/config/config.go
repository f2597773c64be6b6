package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"glasspane/internal/logger"
)

//go:embed glasspane.toml
var defaultTOML []byte

const (
	EnvConfigFile = "GLASSPANE_CONFIG"
	EnvLogLevel   = "GLASSPANE_LOG_LEVEL"
	EnvJSONLogs   = "GLASSPANE_JSON_LOGS"
	EnvDataDir    = "GLASSPANE_DATA_DIR"
	EnvDebug      = "DEBUG"

	// AllWindows in a capability's window list matches every window label.
	AllWindows = "*"
)

var ErrInvalid = errors.New("invalid configuration")

var permissionPattern = regexp.MustCompile(`^[a-z0-9-]+:[a-z0-9-]+$`)

// Config is the static application context: app metadata, windows,
// the capability manifest and per-plugin settings.
type Config struct {
	App          AppConfig      `toml:"app"`
	Log          LogConfig      `toml:"log"`
	DataDir      string         `toml:"data_dir"`
	Windows      []WindowConfig `toml:"windows" validate:"required,min=1,dive"`
	Capabilities []Capability   `toml:"capabilities" validate:"dive"`
	Plugins      PluginsConfig  `toml:"plugins"`
}

type AppConfig struct {
	Name       string `toml:"name" validate:"required"`
	Identifier string `toml:"identifier" validate:"required,hostname_rfc1123"`
	Version    string `toml:"version" validate:"required"`
}

type LogConfig struct {
	Level string `toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `toml:"json"`
}

type WindowConfig struct {
	Label       string  `toml:"label" validate:"required"`
	Title       string  `toml:"title"`
	Width       float32 `toml:"width" validate:"gte=0"`
	Height      float32 `toml:"height" validate:"gte=0"`
	Transparent bool    `toml:"transparent"`
	Hidden      bool    `toml:"hidden"`
	Centered    bool    `toml:"centered"`
	FixedSize   bool    `toml:"fixed_size"`
}

// Capability grants a set of permissions to a set of windows.
type Capability struct {
	Identifier  string   `toml:"identifier" validate:"required"`
	Description string   `toml:"description"`
	Windows     []string `toml:"windows" validate:"required,min=1,dive,required"`
	Permissions []string `toml:"permissions" validate:"required,min=1,dive,required"`
}

type PluginsConfig struct {
	Shortcut ShortcutConfig `toml:"global_shortcut"`
	Shell    ShellConfig    `toml:"shell"`
	FS       FSConfig       `toml:"fs"`
	SQL      SQLConfig      `toml:"sql"`
}

type ShortcutConfig struct {
	// Quit is the accelerator that closes the application. Empty disables it.
	Quit string `toml:"quit"`
}

type ShellConfig struct {
	// Open is the regular expression a target must match to be opened.
	// Empty disables opening.
	Open  string         `toml:"open"`
	Scope []ShellCommand `toml:"scope" validate:"dive"`
}

// ShellCommand is one program the shell plugin may run.
type ShellCommand struct {
	Name         string     `toml:"name" validate:"required"`
	Cmd          string     `toml:"cmd" validate:"required"`
	AllowAnyArgs bool       `toml:"allow_any_args"`
	Args         []ShellArg `toml:"args" validate:"dive"`
}

// ShellArg is either a fixed value or a validator pattern.
type ShellArg struct {
	Value     string `toml:"value" validate:"required_without=Validator"`
	Validator string `toml:"validator" validate:"required_without=Value"`
}

type FSConfig struct {
	Root     string `toml:"root"`
	ReadOnly bool   `toml:"read_only"`
}

type SQLConfig struct {
	Databases []Database `toml:"databases" validate:"dive"`
}

type Database struct {
	URL        string      `toml:"url" validate:"required"`
	Preload    bool        `toml:"preload"`
	Migrations []Migration `toml:"migrations" validate:"dive"`
}

type Migration struct {
	Version     int64  `toml:"version" validate:"gt=0"`
	Description string `toml:"description"`
	SQL         string `toml:"sql" validate:"required"`
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	return Parse(defaultTOML)
}

// Parse decodes data on top of nothing and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load builds the configuration from the embedded defaults, an optional
// file named by GLASSPANE_CONFIG, and environment overrides.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(defaultTOML, cfg); err != nil {
		return nil, fmt.Errorf("decode embedded config: %w", err)
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		overlay := &Config{}
		if err := toml.Unmarshal(data, overlay); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		cfg.merge(overlay)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// merge copies every non-zero section of o into c. Lists replace lists.
func (c *Config) merge(o *Config) {
	if o.App.Name != "" {
		c.App.Name = o.App.Name
	}
	if o.App.Identifier != "" {
		c.App.Identifier = o.App.Identifier
	}
	if o.App.Version != "" {
		c.App.Version = o.App.Version
	}
	if o.Log.Level != "" {
		c.Log.Level = o.Log.Level
	}
	c.Log.JSON = c.Log.JSON || o.Log.JSON
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if len(o.Windows) > 0 {
		c.Windows = o.Windows
	}
	if len(o.Capabilities) > 0 {
		c.Capabilities = o.Capabilities
	}
	if o.Plugins.Shortcut.Quit != "" {
		c.Plugins.Shortcut.Quit = o.Plugins.Shortcut.Quit
	}
	if o.Plugins.Shell.Open != "" {
		c.Plugins.Shell.Open = o.Plugins.Shell.Open
	}
	if len(o.Plugins.Shell.Scope) > 0 {
		c.Plugins.Shell.Scope = o.Plugins.Shell.Scope
	}
	if o.Plugins.FS.Root != "" {
		c.Plugins.FS.Root = o.Plugins.FS.Root
	}
	c.Plugins.FS.ReadOnly = c.Plugins.FS.ReadOnly || o.Plugins.FS.ReadOnly
	if len(o.Plugins.SQL.Databases) > 0 {
		c.Plugins.SQL.Databases = o.Plugins.SQL.Databases
	}
}

func (c *Config) applyEnv() error {
	switch {
	case os.Getenv(EnvLogLevel) != "":
		c.Log.Level = os.Getenv(EnvLogLevel)
	case os.Getenv(EnvDebug) == "1":
		c.Log.Level = "debug"
	}

	if v := os.Getenv(EnvJSONLogs); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, EnvJSONLogs, v)
		}
		c.Log.JSON = b
	}

	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	return nil
}

// LogLevel returns the parsed level, defaulting to info.
func (c *Config) LogLevel() logger.Level {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return logger.InfoLevel
	}
	return level
}

// Window returns the window config with the given label.
func (c *Config) Window(label string) (WindowConfig, bool) {
	for _, w := range c.Windows {
		if w.Label == label {
			return w, true
		}
	}
	return WindowConfig{}, false
}

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	labels := make(map[string]bool, len(c.Windows))
	for _, w := range c.Windows {
		if labels[w.Label] {
			return fmt.Errorf("%w: duplicate window label %q", ErrInvalid, w.Label)
		}
		labels[w.Label] = true
	}

	ids := make(map[string]bool, len(c.Capabilities))
	for _, capability := range c.Capabilities {
		if ids[capability.Identifier] {
			return fmt.Errorf("%w: duplicate capability %q", ErrInvalid, capability.Identifier)
		}
		ids[capability.Identifier] = true

		for _, label := range capability.Windows {
			if label != AllWindows && !labels[label] {
				return fmt.Errorf("%w: capability %q names unknown window %q", ErrInvalid, capability.Identifier, label)
			}
		}
		for _, p := range capability.Permissions {
			if !permissionPattern.MatchString(p) {
				return fmt.Errorf("%w: capability %q has malformed permission %q", ErrInvalid, capability.Identifier, p)
			}
		}
	}

	names := make(map[string]bool, len(c.Plugins.Shell.Scope))
	for _, cmd := range c.Plugins.Shell.Scope {
		if names[cmd.Name] {
			return fmt.Errorf("%w: duplicate shell scope entry %q", ErrInvalid, cmd.Name)
		}
		names[cmd.Name] = true
	}

	urls := make(map[string]bool, len(c.Plugins.SQL.Databases))
	for _, db := range c.Plugins.SQL.Databases {
		if urls[db.URL] {
			return fmt.Errorf("%w: duplicate database %q", ErrInvalid, db.URL)
		}
		urls[db.URL] = true

		versions := make(map[int64]bool, len(db.Migrations))
		for _, m := range db.Migrations {
			if versions[m.Version] {
				return fmt.Errorf("%w: database %q repeats migration version %d", ErrInvalid, db.URL, m.Version)
			}
			versions[m.Version] = true
		}
	}
	return nil
}
