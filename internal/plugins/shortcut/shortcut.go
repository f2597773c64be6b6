// Package shortcut binds keyboard accelerators on every application window
// and reports presses as events.
package shortcut

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"

	"glasspane/internal/capability"
	"glasspane/internal/events"
	"glasspane/internal/logger"
	"glasspane/internal/shutdown"
	"glasspane/internal/window"
)

const (
	Name = "global-shortcut"

	EventTriggered = "global-shortcut://triggered"
	StatePressed   = "Pressed"
)

// uiDo runs window changes on the fyne UI goroutine.
var uiDo = fyne.Do

var (
	ErrAlreadyRegistered = errors.New("shortcut already registered")
	ErrNotRegistered     = errors.New("shortcut not registered")
	ErrNotReady          = errors.New("shortcut plugin not set up")
)

type Event struct {
	Shortcut string
	State    string
}

type Handler func(Event)

type binding struct {
	accel    Accelerator
	shortcut *desktop.CustomShortcut
	handler  Handler
}

type Plugin struct {
	mu       sync.Mutex
	bindings map[string]*binding
	windows  *window.Registry
	events   *events.Bus
	logger   logger.Logger
}

func New() *Plugin {
	return &Plugin{bindings: make(map[string]*binding)}
}

func (p *Plugin) Name() string { return Name }

type shortcutsArgs struct {
	Shortcuts []string `json:"shortcuts"`
}

type shortcutArgs struct {
	Shortcut string `json:"shortcut"`
}

func (p *Plugin) Setup(ctx *capability.Context) error {
	p.mu.Lock()
	p.windows = ctx.Windows
	p.events = ctx.Events
	p.logger = logger.OrNoOp(ctx.Logger)
	p.mu.Unlock()

	ctx.Handle("register", func(_ context.Context, call *capability.Call) (any, error) {
		var args shortcutsArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		for _, s := range args.Shortcuts {
			if err := p.Register(s, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	ctx.Handle("unregister", func(_ context.Context, call *capability.Call) (any, error) {
		var args shortcutsArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		for _, s := range args.Shortcuts {
			if err := p.Unregister(s); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	ctx.Handle("unregister_all", func(context.Context, *capability.Call) (any, error) {
		p.UnregisterAll()
		return nil, nil
	})
	ctx.Handle("is_registered", func(_ context.Context, call *capability.Call) (any, error) {
		var args shortcutArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return p.IsRegistered(args.Shortcut)
	})

	ctx.Defaults("register", "unregister", "unregister_all", "is_registered")
	ctx.OnShutdown(shutdown.Func(p.UnregisterAll))
	return nil
}

// Register binds accelerator on every window. handler may be nil, in which
// case presses are only published on the event bus.
func (p *Plugin) Register(accelerator string, handler Handler) error {
	accel, err := ParseAccelerator(accelerator)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.windows == nil {
		return ErrNotReady
	}
	key := accel.String()
	if _, ok := p.bindings[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, key)
	}

	b := &binding{accel: accel, shortcut: accel.Shortcut(), handler: handler}
	handles := p.windows.Handles()
	uiDo(func() {
		for _, h := range handles {
			h.Fyne().Canvas().AddShortcut(b.shortcut, func(fyne.Shortcut) {
				p.Trigger(key)
			})
		}
	})
	p.bindings[key] = b

	p.logger.Debug("GlobalShortcut", "shortcut registered", map[string]interface{}{
		"shortcut": key,
	})
	return nil
}

func (p *Plugin) Unregister(accelerator string) error {
	accel, err := ParseAccelerator(accelerator)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := accel.String()
	b, ok := p.bindings[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}
	p.detach(b)
	delete(p.bindings, key)
	return nil
}

func (p *Plugin) UnregisterAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, b := range p.bindings {
		p.detach(b)
		delete(p.bindings, key)
	}
}

func (p *Plugin) IsRegistered(accelerator string) (bool, error) {
	accel, err := ParseAccelerator(accelerator)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.bindings[accel.String()]
	return ok, nil
}

// Trigger fires the binding registered under accelerator and reports
// whether one existed. Window canvases call it on key press.
func (p *Plugin) Trigger(accelerator string) bool {
	accel, err := ParseAccelerator(accelerator)
	if err != nil {
		return false
	}

	p.mu.Lock()
	b, ok := p.bindings[accel.String()]
	bus := p.events
	p.mu.Unlock()
	if !ok {
		return false
	}

	event := Event{Shortcut: accel.String(), State: StatePressed}
	if b.handler != nil {
		b.handler(event)
	}
	if bus != nil {
		bus.Publish(events.Event{
			Type: EventTriggered,
			Data: map[string]interface{}{
				"shortcut": event.Shortcut,
				"state":    event.State,
			},
		})
	}
	return true
}

// detach queues removal on the UI goroutine; it never waits, so it is safe
// after the run loop has stopped.
func (p *Plugin) detach(b *binding) {
	if p.windows == nil {
		return
	}
	handles := p.windows.Handles()
	uiDo(func() {
		for _, h := range handles {
			h.Fyne().Canvas().RemoveShortcut(b.shortcut)
		}
	})
}
