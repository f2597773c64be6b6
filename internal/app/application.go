// Package app owns the fyne application, its windows and the plugin runtime.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"fyne.io/fyne/v2"

	"glasspane/internal/capability"
	"glasspane/internal/config"
	"glasspane/internal/events"
	"glasspane/internal/logger"
	"glasspane/internal/shutdown"
	"glasspane/internal/window"
)

const componentName = "Application"

var (
	ErrAlreadyRunning = errors.New("application already running")
	ErrRunLoop        = errors.New("run loop failed")
)

type Application struct {
	fyneApp  fyne.App
	config   *config.Config
	windows  *window.Registry
	registry *capability.Registry
	events   *events.Bus
	shutdown *shutdown.Manager
	logger   logger.Logger
	dataDir  string

	mu      sync.Mutex
	running bool
}

func (a *Application) Fyne() fyne.App { return a.fyneApp }
func (a *Application) Config() *config.Config { return a.config }
func (a *Application) Windows() *window.Registry { return a.windows }
func (a *Application) Capabilities() *capability.Registry { return a.registry }
func (a *Application) Events() *events.Bus { return a.events }
func (a *Application) Logger() logger.Logger { return a.logger }
func (a *Application) DataDir() string { return a.dataDir }

// Window resolves a window by label. A missing label wraps window.ErrNotFound.
func (a *Application) Window(label string) (window.Window, error) {
	return a.windows.Get(label)
}

// Invoke calls a plugin command on behalf of the window labelled windowLabel.
func (a *Application) Invoke(ctx context.Context, windowLabel, address string, args json.RawMessage) (any, error) {
	return a.registry.Invoke(ctx, windowLabel, address, args)
}
