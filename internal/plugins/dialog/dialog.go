// Package dialog shows native file, message and question dialogs.
package dialog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"glasspane/internal/capability"
	"glasspane/internal/events"
	"glasspane/internal/window"
)

const (
	Name = "dialog"

	EventResult = "dialog://result"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

type OpenOptions struct {
	Directory   bool     `json:"directory"`
	Filters     []string `json:"filters"`
	DefaultPath string   `json:"default_path"`
}

type SaveOptions struct {
	DefaultName string   `json:"default_name"`
	DefaultPath string   `json:"default_path"`
	Filters     []string `json:"filters"`
}

type Plugin struct {
	presenter presenter
	windows   *window.Registry
	events    *events.Bus
}

func New() *Plugin {
	return &Plugin{presenter: fynePresenter{}}
}

func (p *Plugin) Name() string { return Name }

type messageArgs struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
}

// Request is what an asynchronous dialog command returns; the answer
// arrives later as a dialog://result event with the same id.
type Request struct {
	ID string `json:"id"`
}

func (p *Plugin) Setup(ctx *capability.Context) error {
	p.windows = ctx.Windows
	p.events = ctx.Events

	ctx.Handle("open", func(_ context.Context, call *capability.Call) (any, error) {
		var opts OpenOptions
		if err := call.Bind(&opts); err != nil {
			return nil, err
		}
		return p.async(func(id string) error {
			return p.Open(call.Window, opts, func(path string, err error) {
				p.publishPath(id, call.Window, path, err)
			})
		})
	})
	ctx.Handle("save", func(_ context.Context, call *capability.Call) (any, error) {
		var opts SaveOptions
		if err := call.Bind(&opts); err != nil {
			return nil, err
		}
		return p.async(func(id string) error {
			return p.Save(call.Window, opts, func(path string, err error) {
				p.publishPath(id, call.Window, path, err)
			})
		})
	})
	ctx.Handle("message", func(_ context.Context, call *capability.Call) (any, error) {
		var args messageArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return nil, p.Message(call.Window, args.Title, args.Message, args.Kind)
	})
	ctx.Handle("ask", func(_ context.Context, call *capability.Call) (any, error) {
		var args messageArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return p.async(func(id string) error {
			return p.Ask(call.Window, args.Title, args.Message, func(answer bool) {
				p.publishAnswer(id, call.Window, answer)
			})
		})
	})
	ctx.Handle("confirm", func(_ context.Context, call *capability.Call) (any, error) {
		var args messageArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return p.async(func(id string) error {
			return p.Confirm(call.Window, args.Title, args.Message, func(answer bool) {
				p.publishAnswer(id, call.Window, answer)
			})
		})
	})

	ctx.Defaults("open", "save", "message", "ask", "confirm")
	return nil
}

// Open asks for a file or directory. cb gets "" when the user cancels.
func (p *Plugin) Open(label string, opts OpenOptions, cb func(path string, err error)) error {
	h, err := p.handle(label)
	if err != nil {
		return err
	}
	p.presenter.Open(h.Fyne(), opts, cb)
	return nil
}

func (p *Plugin) Save(label string, opts SaveOptions, cb func(path string, err error)) error {
	h, err := p.handle(label)
	if err != nil {
		return err
	}
	p.presenter.Save(h.Fyne(), opts, cb)
	return nil
}

func (p *Plugin) Message(label, title, message string, kind Kind) error {
	h, err := p.handle(label)
	if err != nil {
		return err
	}
	switch kind {
	case "":
		kind = KindInfo
	case KindInfo, KindWarning, KindError:
	default:
		return fmt.Errorf("%w: unknown message kind %q", capability.ErrInvalidArgs, kind)
	}
	p.presenter.Message(h.Fyne(), title, message, kind)
	return nil
}

// Ask is a Yes/No question.
func (p *Plugin) Ask(label, title, message string, cb func(bool)) error {
	h, err := p.handle(label)
	if err != nil {
		return err
	}
	p.presenter.Confirm(h.Fyne(), title, message, "Yes", "No", cb)
	return nil
}

// Confirm is an Ok/Cancel question.
func (p *Plugin) Confirm(label, title, message string, cb func(bool)) error {
	h, err := p.handle(label)
	if err != nil {
		return err
	}
	p.presenter.Confirm(h.Fyne(), title, message, "Ok", "Cancel", cb)
	return nil
}

func (p *Plugin) handle(label string) (*window.Handle, error) {
	if p.windows == nil {
		return nil, fmt.Errorf("%w: %q", window.ErrNotFound, label)
	}
	return p.windows.Handle(label)
}

func (p *Plugin) async(show func(id string) error) (any, error) {
	id := uuid.NewString()
	if err := show(id); err != nil {
		return nil, err
	}
	return Request{ID: id}, nil
}

func (p *Plugin) publishPath(id, label, path string, err error) {
	data := map[string]interface{}{
		"id":        id,
		"path":      path,
		"cancelled": path == "" && err == nil,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	p.events.Publish(events.Event{Type: EventResult, Window: label, Data: data})
}

func (p *Plugin) publishAnswer(id, label string, answer bool) {
	p.events.Publish(events.Event{
		Type:   EventResult,
		Window: label,
		Data:   map[string]interface{}{"id": id, "answer": answer},
	})
}
