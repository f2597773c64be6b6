package app

import (
	"context"
	"fmt"

	"fyne.io/fyne/v2"

	"glasspane/internal/window"
)

// Run shows the windows and blocks in the fyne run loop. When the loop
// exits every registered component is shut down in reverse order.
func (a *Application) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.running = true
	a.mu.Unlock()

	for _, h := range a.windows.Handles() {
		if wc, ok := a.config.Window(h.Label()); ok && wc.Hidden {
			continue
		}
		h.Show()
	}

	a.shutdown.Listen(a.Quit)
	go func() {
		select {
		case <-ctx.Done():
			a.logger.Info(componentName, "context cancelled, quitting", nil)
			a.Quit()
		case <-a.shutdown.Done():
		}
	}()

	a.logger.Info(componentName, "entering run loop", nil)
	err := a.runLoop()
	a.Shutdown()
	return err
}

// Shutdown stops plugins, watchers, databases and the event bus. Safe to
// call more than once.
func (a *Application) Shutdown() {
	a.shutdown.Shutdown()
}

// Quit asks the run loop to stop. It may be called from any goroutine.
func (a *Application) Quit() {
	fyne.Do(a.fyneApp.Quit)
}

func (a *Application) runLoop() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRunLoop, r)
		}
	}()
	a.fyneApp.Run()
	return nil
}

// abort releases what a failed Build already started.
func (a *Application) abort() {
	a.shutdown.Shutdown()
}

func (a *Application) buildWindows() (*window.Registry, error) {
	registry := window.NewRegistry()
	var master *window.Handle

	for _, wc := range a.config.Windows {
		title := wc.Title
		if title == "" {
			title = a.config.App.Name
		}

		w := a.fyneApp.NewWindow(title)
		if wc.Width > 0 && wc.Height > 0 {
			w.Resize(fyne.NewSize(wc.Width, wc.Height))
		}
		w.SetFixedSize(wc.FixedSize)
		w.SetPadded(!wc.Transparent)
		if wc.Centered {
			w.CenterOnScreen()
		}

		h := window.NewHandle(wc.Label, w)
		if err := registry.Add(h); err != nil {
			return nil, fmt.Errorf("create window %q: %w", wc.Label, err)
		}

		label := wc.Label
		h.OnClosed(func() {
			a.logger.Debug(componentName, "window closed", map[string]interface{}{"label": label})
		})

		if master == nil || label == "main" {
			master = h
		}
	}

	if master != nil {
		master.Fyne().SetMaster()
	}
	return registry, nil
}
