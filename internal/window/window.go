package window

import (
	"errors"
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
)

var (
	ErrNotFound     = errors.New("window not found")
	ErrDuplicate    = errors.New("window label already registered")
	ErrClosed       = errors.New("window is closed")
	ErrInvalidColor = errors.New("invalid background color")
)

// Transparent is fully transparent black.
var Transparent = color.NRGBA{R: 0, G: 0, B: 0, A: 0}

// Window is the part of a native window the shell mutates.
type Window interface {
	Label() string
	SetBackgroundColor(c color.Color) error
}

// Handle is a labelled fyne window whose content sits over a
// repaintable background rectangle.
type Handle struct {
	label      string
	win        fyne.Window
	background *canvas.Rectangle
	root       *fyne.Container

	mu       sync.Mutex
	closed   bool
	onClosed []func()
}

func NewHandle(label string, win fyne.Window) *Handle {
	bg := canvas.NewRectangle(theme.Color(theme.ColorNameBackground))
	h := &Handle{
		label:      label,
		win:        win,
		background: bg,
		root:       container.NewStack(bg),
	}
	win.SetContent(h.root)
	win.SetOnClosed(h.handleClosed)
	return h
}

func (h *Handle) Label() string {
	return h.label
}

// Fyne exposes the underlying window for dialogs and shortcuts.
func (h *Handle) Fyne() fyne.Window {
	return h.win
}

// SetContent places obj above the background.
func (h *Handle) SetContent(obj fyne.CanvasObject) {
	if obj == nil {
		h.root.Objects = []fyne.CanvasObject{h.background}
	} else {
		h.root.Objects = []fyne.CanvasObject{h.background, obj}
	}
	h.root.Refresh()
}

func (h *Handle) BackgroundColor() color.Color {
	return h.background.FillColor
}

func (h *Handle) SetBackgroundColor(c color.Color) error {
	if c == nil {
		return ErrInvalidColor
	}
	if h.IsClosed() {
		return ErrClosed
	}

	h.background.FillColor = c
	h.background.Refresh()
	return nil
}

// OnClosed adds fn to the hooks run once the window closes.
func (h *Handle) OnClosed(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClosed = append(h.onClosed, fn)
}

func (h *Handle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Handle) Show() {
	h.win.Show()
}

func (h *Handle) Close() {
	h.win.Close()
}

func (h *Handle) handleClosed() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	hooks := append([]func(){}, h.onClosed...)
	h.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
