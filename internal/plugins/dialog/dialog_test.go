package dialog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/theme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glasspane/internal/capability"
	"glasspane/internal/events"
	"glasspane/internal/plugins/plugintest"
	"glasspane/internal/window"
)

type fakePresenter struct {
	path    string
	err     error
	answer  bool
	opened  []OpenOptions
	saved   []SaveOptions
	message []string
	buttons [][2]string
}

func (f *fakePresenter) Open(_ fyne.Window, opts OpenOptions, cb func(string, error)) {
	f.opened = append(f.opened, opts)
	cb(f.path, f.err)
}

func (f *fakePresenter) Save(_ fyne.Window, opts SaveOptions, cb func(string, error)) {
	f.saved = append(f.saved, opts)
	cb(f.path, f.err)
}

func (f *fakePresenter) Message(_ fyne.Window, title, message string, kind Kind) {
	f.message = append(f.message, string(kind)+"|"+title+"|"+message)
}

func (f *fakePresenter) Confirm(_ fyne.Window, _, _, ok, cancel string, cb func(bool)) {
	f.buttons = append(f.buttons, [2]string{ok, cancel})
	cb(f.answer)
}

func setup(t *testing.T, fake *fakePresenter) (*Plugin, *plugintest.Harness, chan events.Event) {
	t.Helper()
	p := New()
	p.presenter = fake
	h := plugintest.New(t, nil, p)

	results := make(chan events.Event, 4)
	h.Events.Subscribe(EventResult, func(e events.Event) { results <- e })
	return p, h, results
}

func next(t *testing.T, ch chan events.Event) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no dialog result")
		return events.Event{}
	}
}

func TestOpenCommandPublishesPath(t *testing.T) {
	fake := &fakePresenter{path: "/tmp/notes.txt"}
	_, h, results := setup(t, fake)

	out, err := h.Invoke("plugin:dialog|open", map[string]any{"filters": []string{"txt"}})
	require.NoError(t, err)
	req := out.(Request)
	assert.NotEmpty(t, req.ID)

	e := next(t, results)
	assert.Equal(t, req.ID, e.Data["id"])
	assert.Equal(t, "/tmp/notes.txt", e.Data["path"])
	assert.Equal(t, false, e.Data["cancelled"])
	assert.Equal(t, "main", e.Window)
	require.Len(t, fake.opened, 1)
	assert.Equal(t, []string{"txt"}, fake.opened[0].Filters)
}

func TestSaveCommandCancelled(t *testing.T) {
	fake := &fakePresenter{}
	_, h, results := setup(t, fake)

	_, err := h.Invoke("plugin:dialog|save", map[string]any{"default_name": "out.csv"})
	require.NoError(t, err)

	e := next(t, results)
	assert.Equal(t, true, e.Data["cancelled"])
	assert.Equal(t, "out.csv", fake.saved[0].DefaultName)
}

func TestOpenCommandError(t *testing.T) {
	fake := &fakePresenter{err: errors.New("permission denied")}
	_, h, results := setup(t, fake)

	_, err := h.Invoke("plugin:dialog|open", nil)
	require.NoError(t, err)

	e := next(t, results)
	assert.Equal(t, "permission denied", e.Data["error"])
	assert.Equal(t, false, e.Data["cancelled"])
}

func TestAskAndConfirmButtons(t *testing.T) {
	fake := &fakePresenter{answer: true}
	_, h, results := setup(t, fake)

	_, err := h.Invoke("plugin:dialog|ask", map[string]any{"title": "Delete?", "message": "Really?"})
	require.NoError(t, err)
	assert.Equal(t, true, next(t, results).Data["answer"])

	_, err = h.Invoke("plugin:dialog|confirm", map[string]any{"title": "Save", "message": "Save changes?"})
	require.NoError(t, err)
	next(t, results)

	assert.Equal(t, [][2]string{{"Yes", "No"}, {"Ok", "Cancel"}}, fake.buttons)
}

func TestMessage(t *testing.T) {
	fake := &fakePresenter{}
	p, _, _ := setup(t, fake)

	require.NoError(t, p.Message("main", "Hi", "there", ""))
	require.NoError(t, p.Message("main", "Oops", "broken", KindError))
	assert.Equal(t, []string{"info|Hi|there", "error|Oops|broken"}, fake.message)

	assert.ErrorIs(t, p.Message("main", "x", "y", "shout"), capability.ErrInvalidArgs)
	assert.ErrorIs(t, p.Message("settings", "x", "y", KindInfo), window.ErrNotFound)
}

func TestShowMessageUsesOverlay(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()
	w := a.NewWindow("main")
	w.Resize(fyne.NewSize(400, 300))

	showMessage(w, "Title", "Body", KindInfo)
	assert.NotNil(t, w.Canvas().Overlays().Top())
}

func TestShowConfirmUsesOverlay(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()
	w := a.NewWindow("main")
	w.Resize(fyne.NewSize(400, 300))

	showConfirm(w, "Title", "Body", "Ok", "Cancel", func(bool) {})
	assert.NotNil(t, w.Canvas().Overlays().Top())
}

func TestExtensions(t *testing.T) {
	assert.Equal(t, []string{".txt", ".png", ".csv"}, extensions([]string{"txt", "*.PNG", ".csv", " "}))
}

func TestSaveName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		filters []string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "report", want: "report"},
		{name: "trimmed", in: "  report.txt ", want: "report.txt"},
		{name: "adds first filter extension", in: "data", filters: []string{"csv", "txt"}, want: "data.csv"},
		{name: "keeps matching extension", in: "data.TXT", filters: []string{"csv", "txt"}, want: "data.TXT"},
		{name: "empty", in: " ", wantErr: true},
		{name: "dot dot", in: "..", wantErr: true},
		{name: "slash", in: "a/b", wantErr: true},
		{name: "backslash", in: `a\b`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := saveName(tt.in, tt.filters)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFileName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfirmSavePathNewFile(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()
	w := a.NewWindow("main")

	path := filepath.Join(t.TempDir(), "new.txt")
	var got string
	confirmSavePath(w, path, func(p string, err error) {
		require.NoError(t, err)
		got = p
	})

	assert.Equal(t, path, got)
	assert.Nil(t, w.Canvas().Overlays().Top())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "choosing a path must not create the file")
}

func TestConfirmSavePathKeepsExistingContents(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()
	w := a.NewWindow("main")
	w.Resize(fyne.NewSize(400, 300))

	path := filepath.Join(t.TempDir(), "existing.txt")
	require.NoError(t, os.WriteFile(path, []byte("twelve bytes"), 0o644))

	called := false
	confirmSavePath(w, path, func(string, error) { called = true })

	assert.False(t, called, "an existing file needs confirmation first")
	assert.NotNil(t, w.Canvas().Overlays().Top())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "twelve bytes", string(data))
}

func TestMessageIcons(t *testing.T) {
	assert.Equal(t, theme.InfoIcon().Name(), messageIcon(KindInfo).Name())
	assert.Equal(t, theme.WarningIcon().Name(), messageIcon(KindWarning).Name())
	assert.Equal(t, theme.ErrorIcon().Name(), messageIcon(KindError).Name())
}

func TestShowWarningAndErrorUseOverlay(t *testing.T) {
	for _, kind := range []Kind{KindWarning, KindError} {
		a := test.NewApp()
		w := a.NewWindow("main")
		w.Resize(fyne.NewSize(400, 300))

		showMessage(w, "Title", "Body", kind)
		assert.NotNil(t, w.Canvas().Overlays().Top(), kind)
		a.Quit()
	}
}
