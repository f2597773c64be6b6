package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glasspane/internal/capability"
	"glasspane/internal/config"
	"glasspane/internal/logger"
	"glasspane/internal/plugins/shortcut"
	"glasspane/internal/window"
)

type fakeWindow struct {
	label string
	bg    color.Color
	err   error
	calls int
}

func (w *fakeWindow) Label() string { return w.label }

func (w *fakeWindow) SetBackgroundColor(c color.Color) error {
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.bg = c
	return nil
}

type fakeWindows map[string]*fakeWindow

func (f fakeWindows) Window(label string) (window.Window, error) {
	w, ok := f[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", window.ErrNotFound, label)
	}
	return w, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestSetupMakesMainTransparent(t *testing.T) {
	main := &fakeWindow{label: MainWindow, bg: color.White}

	require.NoError(t, SetupMainWindow(fakeWindows{MainWindow: main}, nil))
	assert.Equal(t, color.Color(color.NRGBA{R: 0, G: 0, B: 0, A: 0}), main.bg)
	assert.Equal(t, 1, main.calls)
}

func TestSetupWithoutMainWindow(t *testing.T) {
	other := &fakeWindow{label: "other"}

	err := SetupMainWindow(fakeWindows{"other": other}, nil)
	assert.ErrorIs(t, err, window.ErrNotFound)
	assert.Zero(t, other.calls)
}

func TestSetupIgnoresColorFailure(t *testing.T) {
	main := &fakeWindow{label: MainWindow, err: errors.New("compositor unavailable")}

	assert.NoError(t, SetupMainWindow(fakeWindows{MainWindow: main}, logger.NoOp{}))
	assert.Equal(t, 1, main.calls)
}

func TestPluginNames(t *testing.T) {
	var names []string
	for _, p := range Plugins() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"global-shortcut", "shell", "dialog", "fs", "sql"}, names)
}

func TestDefaultPluginsRegisterWithoutError(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(nil).
		Driver(func(string) fyne.App { return test.NewApp() }).
		Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)

	for _, name := range []string{"core", "global-shortcut", "shell", "dialog", "fs", "sql"} {
		_, ok := a.Capabilities().Lookup(name)
		assert.True(t, ok, name)
	}

	h, err := a.Windows().Handle(MainWindow)
	require.NoError(t, err)
	assert.Equal(t, color.Color(window.Transparent), h.BackgroundColor())
}

func TestRegisteringDefaultsTwiceIsIdempotent(t *testing.T) {
	b := New(nil).Driver(func(string) fyne.App { return test.NewApp() })
	for _, p := range Plugins() {
		b.Plugin(p)
	}

	a, err := b.Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)

	assert.Len(t, a.Capabilities().Plugins(), 6)
}

func TestBuildWithoutMainWindowFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Windows = []config.WindowConfig{{Label: "secondary"}}
	for i := range cfg.Capabilities {
		cfg.Capabilities[i].Windows = []string{"secondary"}
	}

	_, err := New(nil).
		Driver(func(string) fyne.App { return test.NewApp() }).
		Build(context.Background(), cfg)
	assert.ErrorIs(t, err, window.ErrNotFound)
}

func TestDefaultCommandsGrantedToMain(t *testing.T) {
	a, err := New(nil).
		Driver(func(string) fyne.App { return test.NewApp() }).
		Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)

	out, err := a.Invoke(context.Background(), MainWindow, "plugin:core|app_name", nil)
	require.NoError(t, err)
	assert.Equal(t, "Glasspane", out)

	_, err = a.Invoke(context.Background(), MainWindow, "plugin:shell|execute", nil)
	assert.ErrorIs(t, err, capability.ErrForbidden)
}

// quitCounter is a test app that counts Quit calls.
type quitCounter struct {
	fyne.App
	quits *atomic.Int32
}

func (q quitCounter) Quit() { q.quits.Add(1) }

func TestQuitShortcutRegisteredThroughCommands(t *testing.T) {
	var quits atomic.Int32
	a, err := New(nil).
		Driver(func(string) fyne.App { return quitCounter{App: test.NewApp(), quits: &quits} }).
		Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)

	out, err := a.Invoke(context.Background(), MainWindow, "plugin:global-shortcut|is_registered", []byte(`{"shortcut":"CmdOrCtrl+Q"}`))
	require.NoError(t, err)
	assert.Equal(t, true, out)

	plugin, ok := a.Capabilities().Lookup(shortcut.Name)
	require.True(t, ok)
	sp := plugin.(*shortcut.Plugin)

	assert.True(t, sp.Trigger("CmdOrCtrl+Q"))
	assert.Eventually(t, func() bool { return quits.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestQuitShortcutProblemsDoNotStopStartup(t *testing.T) {
	cases := map[string]func(*config.Config){
		"disabled":  func(cfg *config.Config) { cfg.Plugins.Shortcut.Quit = "" },
		"malformed": func(cfg *config.Config) { cfg.Plugins.Shortcut.Quit = "Q" },
		"forbidden": func(cfg *config.Config) {
			cfg.Capabilities[0].Permissions = append(cfg.Capabilities[0].Permissions, "global-shortcut:deny-register")
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(cfg)

			a, err := New(nil).
				Driver(func(string) fyne.App { return test.NewApp() }).
				Build(context.Background(), cfg)
			require.NoError(t, err)
			t.Cleanup(a.Shutdown)

			plugin, _ := a.Capabilities().Lookup(shortcut.Name)
			registered, err := plugin.(*shortcut.Plugin).IsRegistered("CmdOrCtrl+Q")
			require.NoError(t, err)
			assert.False(t, registered)
		})
	}
}
