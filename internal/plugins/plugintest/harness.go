// Package plugintest builds a headless plugin runtime for tests.
package plugintest

import (
	"context"
	"encoding/json"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/require"

	"glasspane/internal/capability"
	"glasspane/internal/config"
	"glasspane/internal/events"
	"glasspane/internal/logger"
	"glasspane/internal/shutdown"
	"glasspane/internal/window"
)

type Harness struct {
	App      fyne.App
	Config   *config.Config
	Windows  *window.Registry
	Main     *window.Handle
	Events   *events.Bus
	Shutdown *shutdown.Manager
	Registry *capability.Registry
	DataDir  string
}

// New sets up plugins against a test app with a "main" window. A nil cfg
// means the embedded default configuration.
func New(t testing.TB, cfg *config.Config, plugins ...capability.Plugin) *Harness {
	t.Helper()

	if cfg == nil {
		var err error
		cfg, err = config.Default()
		require.NoError(t, err)
	}

	a := test.NewApp()
	t.Cleanup(a.Quit)

	windows := window.NewRegistry()
	main := window.NewHandle("main", a.NewWindow("main"))
	require.NoError(t, windows.Add(main))

	bus := events.NewBus(64, nil)
	sm := shutdown.NewManager(nil)
	sm.Register(bus)
	t.Cleanup(sm.Shutdown)

	h := &Harness{
		App:      a,
		Config:   cfg,
		Windows:  windows,
		Main:     main,
		Events:   bus,
		Shutdown: sm,
		Registry: capability.NewRegistry(cfg.Capabilities, nil),
		DataDir:  t.TempDir(),
	}

	for _, p := range plugins {
		h.Registry.Register(p)
	}
	require.NoError(t, h.Registry.SetupAll(capability.Context{
		App:      a,
		Config:   cfg,
		Windows:  windows,
		Events:   bus,
		Logger:   logger.NoOp{},
		Shutdown: sm,
		DataDir:  h.DataDir,
	}))
	return h
}

// Invoke calls address from the main window with args encoded as JSON.
func (h *Harness) Invoke(address string, args any) (any, error) {
	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return h.Registry.Invoke(context.Background(), "main", address, raw)
}

// Grant returns cfg with an extra capability for the main window.
func Grant(cfg *config.Config, permissions ...string) *config.Config {
	cfg.Capabilities = append(cfg.Capabilities, config.Capability{
		Identifier:  "test-grant",
		Windows:     []string{"main"},
		Permissions: permissions,
	})
	return cfg
}

// DefaultConfig is config.Default that fails the test on error.
func DefaultConfig(t testing.TB) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	return cfg
}
