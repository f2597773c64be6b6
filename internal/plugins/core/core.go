// Package core exposes application metadata, window background control and
// event emission as commands.
package core

import (
	"context"
	"fmt"
	"image/color"

	"fyne.io/fyne/v2"

	"glasspane/internal/capability"
	"glasspane/internal/events"
	"glasspane/internal/logger"
)

const Name = "core"

// uiDo runs window changes on the fyne UI goroutine.
var uiDo = fyne.Do

type Plugin struct{}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return Name }

type backgroundArgs struct {
	Label string `json:"label"`
	R     uint8  `json:"r"`
	G     uint8  `json:"g"`
	B     uint8  `json:"b"`
	A     uint8  `json:"a"`
}

type emitArgs struct {
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
}

func (p *Plugin) Setup(ctx *capability.Context) error {
	cfg := ctx.Config
	log := logger.OrNoOp(ctx.Logger)

	ctx.Handle("app_name", func(context.Context, *capability.Call) (any, error) {
		return cfg.App.Name, nil
	})
	ctx.Handle("app_version", func(context.Context, *capability.Call) (any, error) {
		return cfg.App.Version, nil
	})

	// Colour changes are cosmetic: a failing window is logged, not reported.
	// The repaint runs on the UI goroutine.
	ctx.Handle("set_background_color", func(_ context.Context, call *capability.Call) (any, error) {
		args := backgroundArgs{Label: call.Window}
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		w, err := ctx.Windows.Get(args.Label)
		if err != nil {
			return nil, err
		}
		c := color.NRGBA{R: args.R, G: args.G, B: args.B, A: args.A}
		uiDo(func() {
			if err := w.SetBackgroundColor(c); err != nil {
				log.Debug("Core", "background color not applied", map[string]interface{}{
					"window": args.Label,
					"error":  err.Error(),
				})
			}
		})
		return nil, nil
	})

	ctx.Handle("emit", func(_ context.Context, call *capability.Call) (any, error) {
		var args emitArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		if args.Event == "" {
			return nil, fmt.Errorf("%w: event name required", capability.ErrInvalidArgs)
		}
		return ctx.Events.Publish(events.Event{
			Type:   args.Event,
			Window: call.Window,
			Data:   args.Payload,
		}), nil
	})

	ctx.Defaults("app_name", "app_version", "set_background_color", "emit")
	return nil
}
