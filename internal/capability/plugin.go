// Package capability holds the plugin registry, the command table plugins
// fill during setup, and the permission checks applied on every invoke.
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fyne.io/fyne/v2"

	"glasspane/internal/config"
	"glasspane/internal/events"
	"glasspane/internal/logger"
	"glasspane/internal/shutdown"
	"glasspane/internal/window"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrForbidden      = errors.New("command not allowed")
	ErrInvalidArgs    = errors.New("invalid command arguments")
	ErrBadAddress     = errors.New("malformed command address")
)

// Plugin is an independently initialised capability module.
type Plugin interface {
	Name() string
	Setup(ctx *Context) error
}

// HandlerFunc serves one command.
type HandlerFunc func(ctx context.Context, call *Call) (any, error)

// Call is a single command invocation.
type Call struct {
	Window  string
	Plugin  string
	Command string
	Args    json.RawMessage
}

// Bind decodes the call arguments into v. Empty arguments leave v untouched.
func (c *Call) Bind(v any) error {
	if len(c.Args) == 0 || string(c.Args) == "null" {
		return nil
	}
	if err := json.Unmarshal(c.Args, v); err != nil {
		return fmt.Errorf("%w: %s|%s: %v", ErrInvalidArgs, c.Plugin, c.Command, err)
	}
	return nil
}

// Context is what a plugin sees during Setup.
type Context struct {
	App      fyne.App
	Config   *config.Config
	Windows  *window.Registry
	Events   *events.Bus
	Logger   logger.Logger
	Shutdown *shutdown.Manager
	DataDir  string

	plugin   string
	registry *Registry
}

func (c *Context) Plugin() string {
	return c.plugin
}

// Handle registers a command under the plugin being set up.
func (c *Context) Handle(command string, handler HandlerFunc) {
	c.registry.handle(c.plugin, command, handler)
}

// Defaults declares the commands granted by the "<plugin>:default" permission.
func (c *Context) Defaults(commands ...string) {
	c.registry.setDefaults(c.plugin, commands)
}

// OnShutdown registers a component closed when the application stops.
func (c *Context) OnShutdown(component shutdown.Shutdownable) {
	if c.Shutdown != nil {
		c.Shutdown.Register(component)
	}
}
