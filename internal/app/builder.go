package app

import (
	"context"
	"errors"
	"fmt"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"

	"glasspane/internal/assets"
	"glasspane/internal/capability"
	"glasspane/internal/config"
	"glasspane/internal/events"
	"glasspane/internal/logger"
	"glasspane/internal/plugins/core"
	"glasspane/internal/shutdown"
)

// SetupFunc runs once after plugin setup and before the run loop.
type SetupFunc func(a *Application) error

// Builder collects plugins and setup callbacks, then builds an Application.
type Builder struct {
	plugins []capability.Plugin
	setups  []SetupFunc
	logger  logger.Logger
	newApp  func(id string) fyne.App
}

func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		logger: logger.OrNoOp(log),
		newApp: fyneapp.NewWithID,
	}
}

// Plugin appends p to the plugins set up at build time, in order.
func (b *Builder) Plugin(p capability.Plugin) *Builder {
	b.plugins = append(b.plugins, p)
	return b
}

func (b *Builder) Setup(fn SetupFunc) *Builder {
	b.setups = append(b.setups, fn)
	return b
}

// Driver replaces the fyne app constructor, e.g. with test.NewApp.
func (b *Builder) Driver(newApp func(id string) fyne.App) *Builder {
	b.newApp = newApp
	return b
}

// Build creates the fyne app and windows, sets up every plugin and then
// runs the setup callbacks. Any error aborts the build.
func (b *Builder) Build(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("build application: nil config")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := b.logger
	log.Info(componentName, "building application", map[string]interface{}{
		"name":    cfg.App.Name,
		"id":      cfg.App.Identifier,
		"version": cfg.App.Version,
		"plugins": len(b.plugins),
	})

	fyneApp := b.newApp(cfg.App.Identifier)
	fyneApp.SetIcon(assets.Icon())

	a := &Application{
		fyneApp:  fyneApp,
		config:   cfg,
		events:   events.NewBus(events.DefaultBufferSize, log),
		shutdown: shutdown.NewManager(log),
		logger:   log,
	}
	a.shutdown.Register(a.events)

	windows, err := a.buildWindows()
	if err != nil {
		a.abort()
		return nil, err
	}
	a.windows = windows
	a.dataDir = resolveDataDir(cfg, fyneApp)

	a.registry = capability.NewRegistry(cfg.Capabilities, log)
	a.registry.Register(core.New())
	for _, p := range b.plugins {
		if !a.registry.Register(p) {
			log.Debug(componentName, "plugin already registered", map[string]interface{}{
				"plugin": p.Name(),
			})
		}
	}

	err = a.registry.SetupAll(capability.Context{
		App:      fyneApp,
		Config:   cfg,
		Windows:  a.windows,
		Events:   a.events,
		Logger:   log,
		Shutdown: a.shutdown,
		DataDir:  a.dataDir,
	})
	if err != nil {
		a.abort()
		return nil, err
	}

	for i, fn := range b.setups {
		if err := fn(a); err != nil {
			a.abort()
			return nil, fmt.Errorf("setup callback %d: %w", i, err)
		}
	}

	log.Info(componentName, "initialization complete", map[string]interface{}{
		"windows":  a.windows.Labels(),
		"commands": len(a.registry.Commands()),
		"data_dir": a.dataDir,
	})
	return a, nil
}

// Run builds the application and blocks in the run loop until it exits.
func (b *Builder) Run(ctx context.Context, cfg *config.Config) error {
	a, err := b.Build(ctx, cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func resolveDataDir(cfg *config.Config, fyneApp fyne.App) string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	if s := fyneApp.Storage(); s != nil && s.RootURI() != nil {
		return s.RootURI().Path()
	}
	return ""
}
