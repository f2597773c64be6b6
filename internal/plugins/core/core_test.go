package core

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glasspane/internal/capability"
	"glasspane/internal/events"
	"glasspane/internal/plugins/plugintest"
)

func TestAppMetadata(t *testing.T) {
	h := plugintest.New(t, nil, New())

	name, err := h.Invoke("plugin:core|app_name", nil)
	require.NoError(t, err)
	assert.Equal(t, "Glasspane", name)

	version, err := h.Invoke("plugin:core|app_version", nil)
	require.NoError(t, err)
	assert.Equal(t, h.Config.App.Version, version)
}

func TestSetBackgroundColor(t *testing.T) {
	h := plugintest.New(t, nil, New())

	_, err := h.Invoke("plugin:core|set_background_color", map[string]any{"r": 10, "g": 20, "b": 30, "a": 40})
	require.NoError(t, err)
	assert.Equal(t, color.Color(color.NRGBA{R: 10, G: 20, B: 30, A: 40}), h.Main.BackgroundColor())
}

func TestSetBackgroundColorOnClosedWindowIsIgnored(t *testing.T) {
	h := plugintest.New(t, nil, New())
	h.Main.Close()

	_, err := h.Invoke("plugin:core|set_background_color", map[string]any{"a": 255})
	assert.NoError(t, err)
}

func TestSetBackgroundColorUnknownWindow(t *testing.T) {
	h := plugintest.New(t, nil, New())

	_, err := h.Invoke("plugin:core|set_background_color", map[string]any{"label": "nope"})
	assert.Error(t, err)
}

func TestEmit(t *testing.T) {
	h := plugintest.New(t, nil, New())

	got := make(chan events.Event, 1)
	h.Events.Subscribe("app://ping", func(e events.Event) { got <- e })

	out, err := h.Invoke("plugin:core|emit", map[string]any{"event": "app://ping", "payload": map[string]any{"n": 1}})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	select {
	case e := <-got:
		assert.Equal(t, "main", e.Window)
		assert.EqualValues(t, 1, e.Data["n"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	_, err = h.Invoke("plugin:core|emit", map[string]any{})
	assert.ErrorIs(t, err, capability.ErrInvalidArgs)
}

func TestSetBackgroundColorRunsOnUIGoroutine(t *testing.T) {
	h := plugintest.New(t, nil, New())

	var queued []func()
	orig := uiDo
	uiDo = func(fn func()) { queued = append(queued, fn) }
	t.Cleanup(func() { uiDo = orig })

	before := h.Main.BackgroundColor()
	_, err := h.Invoke("plugin:core|set_background_color", map[string]any{"r": 1, "a": 255})
	require.NoError(t, err)

	require.Len(t, queued, 1)
	assert.Equal(t, before, h.Main.BackgroundColor(), "nothing repaints off the UI goroutine")

	queued[0]()
	assert.Equal(t, color.Color(color.NRGBA{R: 1, A: 255}), h.Main.BackgroundColor())
}
