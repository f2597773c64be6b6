// Package bootstrap assembles the default application: the five capability
// plugins and the setup step that makes the main window transparent.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"

	"glasspane/internal/app"
	"glasspane/internal/capability"
	"glasspane/internal/events"
	"glasspane/internal/logger"
	"glasspane/internal/plugins/dialog"
	"glasspane/internal/plugins/fs"
	"glasspane/internal/plugins/shell"
	"glasspane/internal/plugins/shortcut"
	"glasspane/internal/plugins/sql"
	"glasspane/internal/window"
)

const (
	componentName = "Bootstrap"

	// MainWindow is the label of the window made transparent at startup.
	MainWindow = "main"
)

// WindowLookup resolves windows by label.
type WindowLookup interface {
	Window(label string) (window.Window, error)
}

// Plugins returns fresh instances of the default plugins.
func Plugins() []capability.Plugin {
	return []capability.Plugin{
		shortcut.New(),
		shell.New(),
		dialog.New(),
		fs.New(),
		sql.New(),
	}
}

// New returns a builder with the default plugins and the main window setup.
func New(log logger.Logger) *app.Builder {
	b := app.NewBuilder(log)
	for _, p := range Plugins() {
		b.Plugin(p)
	}
	return b.
		Setup(func(a *app.Application) error {
			return SetupMainWindow(a, a.Logger())
		}).
		Setup(RegisterQuitShortcut)
}

// RegisterQuitShortcut binds the configured quit accelerator through the
// global-shortcut commands, on behalf of the main window, and quits the
// application when it fires. Failures are logged; the app still starts.
func RegisterQuitShortcut(a *app.Application) error {
	accel := a.Config().Plugins.Shortcut.Quit
	if accel == "" {
		return nil
	}
	log := logger.OrNoOp(a.Logger())

	parsed, err := shortcut.ParseAccelerator(accel)
	if err != nil {
		log.Warning(componentName, "quit shortcut ignored", map[string]interface{}{
			"shortcut": accel,
			"error":    err.Error(),
		})
		return nil
	}
	key := parsed.String()

	args, err := json.Marshal(map[string][]string{"shortcuts": {key}})
	if err != nil {
		return err
	}
	if _, err := a.Invoke(context.Background(), MainWindow, "plugin:"+shortcut.Name+"|register", args); err != nil {
		log.Warning(componentName, "quit shortcut not registered", map[string]interface{}{
			"shortcut": key,
			"error":    err.Error(),
		})
		return nil
	}

	a.Events().Subscribe(shortcut.EventTriggered, func(e events.Event) {
		if e.Data["shortcut"] == key {
			log.Info(componentName, "quit shortcut pressed", nil)
			a.Quit()
		}
	})
	return nil
}

// SetupMainWindow sets the main window's background to transparent. A
// missing main window is an error wrapping window.ErrNotFound; a failed
// colour change is only logged.
func SetupMainWindow(windows WindowLookup, log logger.Logger) error {
	log = logger.OrNoOp(log)

	w, err := windows.Window(MainWindow)
	if err != nil {
		return fmt.Errorf("resolve %q window: %w", MainWindow, err)
	}

	if err := w.SetBackgroundColor(window.Transparent); err != nil {
		log.Debug(componentName, "background color not applied", map[string]interface{}{
			"window": MainWindow,
			"error":  err.Error(),
		})
	}
	return nil
}
