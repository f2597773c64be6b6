package dialog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	fynedialog "fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

var ErrInvalidFileName = errors.New("invalid file name")

// presenter shows native dialogs. Callbacks receive an empty path or a
// false answer when the user cancels.
type presenter interface {
	Open(w fyne.Window, opts OpenOptions, cb func(path string, err error))
	Save(w fyne.Window, opts SaveOptions, cb func(path string, err error))
	Message(w fyne.Window, title, message string, kind Kind)
	Confirm(w fyne.Window, title, message, ok, cancel string, cb func(bool))
}

// fynePresenter marshals every dialog onto the UI goroutine.
type fynePresenter struct{}

func (fynePresenter) Open(w fyne.Window, opts OpenOptions, cb func(string, error)) {
	fyne.Do(func() { showOpen(w, opts, cb) })
}

func (fynePresenter) Save(w fyne.Window, opts SaveOptions, cb func(string, error)) {
	fyne.Do(func() { showSave(w, opts, cb) })
}

func (fynePresenter) Message(w fyne.Window, title, message string, kind Kind) {
	fyne.Do(func() { showMessage(w, title, message, kind) })
}

func (fynePresenter) Confirm(w fyne.Window, title, message, ok, cancel string, cb func(bool)) {
	fyne.Do(func() { showConfirm(w, title, message, ok, cancel, cb) })
}

func showOpen(w fyne.Window, opts OpenOptions, cb func(string, error)) {
	if opts.Directory {
		d := fynedialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
			if err != nil || uri == nil {
				cb("", err)
				return
			}
			cb(uri.Path(), nil)
		}, w)
		setLocation(d, opts.DefaultPath)
		d.Show()
		return
	}

	d := fynedialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil || r == nil {
			cb("", err)
			return
		}
		path := r.URI().Path()
		_ = r.Close()
		cb(path, nil)
	}, w)
	if len(opts.Filters) > 0 {
		d.SetFilter(storage.NewExtensionFileFilter(extensions(opts.Filters)))
	}
	setLocation(d, opts.DefaultPath)
	d.Show()
}

// showSave picks a folder, then a file name, and reports the joined path.
// The file itself is never opened, so an existing file keeps its contents.
func showSave(w fyne.Window, opts SaveOptions, cb func(string, error)) {
	d := fynedialog.NewFolderOpen(func(dir fyne.ListableURI, err error) {
		if err != nil || dir == nil {
			cb("", err)
			return
		}
		askFileName(w, dir.Path(), opts, cb)
	}, w)
	setLocation(d, opts.DefaultPath)
	d.Show()
}

func askFileName(w fyne.Window, dir string, opts SaveOptions, cb func(string, error)) {
	entry := widget.NewEntry()
	entry.SetText(opts.DefaultName)
	entry.Validator = func(s string) error {
		_, err := saveName(s, opts.Filters)
		return err
	}

	items := []*widget.FormItem{widget.NewFormItem("File name", entry)}
	fynedialog.NewForm("Save as", "Save", "Cancel", items, func(ok bool) {
		if !ok {
			cb("", nil)
			return
		}
		name, err := saveName(entry.Text, opts.Filters)
		if err != nil {
			cb("", err)
			return
		}
		confirmSavePath(w, filepath.Join(dir, name), cb)
	}, w).Show()
}

// confirmSavePath asks before reporting a path that already exists.
func confirmSavePath(w fyne.Window, path string, cb func(string, error)) {
	if _, err := os.Stat(path); err != nil {
		cb(path, nil)
		return
	}
	msg := fmt.Sprintf("%s already exists. Replace it?", filepath.Base(path))
	fynedialog.NewConfirm("Replace file", msg, func(ok bool) {
		if ok {
			cb(path, nil)
			return
		}
		cb("", nil)
	}, w).Show()
}

// saveName rejects empty names and names with separators, and appends the
// first filter extension when name matches none of them.
func saveName(name string, filters []string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}

	exts := extensions(filters)
	if len(exts) == 0 {
		return name, nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return name, nil
		}
	}
	return name + exts[0], nil
}

func showMessage(w fyne.Window, title, message string, kind Kind) {
	if kind == KindInfo {
		fynedialog.NewInformation(title, message, w).Show()
		return
	}
	label := widget.NewLabel(message)
	label.Wrapping = fyne.TextWrapWord
	content := container.NewBorder(nil, nil, widget.NewIcon(messageIcon(kind)), nil, label)
	fynedialog.NewCustom(title, "OK", content, w).Show()
}

func messageIcon(kind Kind) fyne.Resource {
	switch kind {
	case KindError:
		return theme.ErrorIcon()
	case KindWarning:
		return theme.WarningIcon()
	default:
		return theme.InfoIcon()
	}
}

func showConfirm(w fyne.Window, title, message, ok, cancel string, cb func(bool)) {
	d := fynedialog.NewConfirm(title, message, cb, w)
	d.SetConfirmText(ok)
	d.SetDismissText(cancel)
	d.Show()
}

func setLocation(d *fynedialog.FileDialog, dir string) {
	if dir == "" {
		return
	}
	lister, err := storage.ListerForURI(storage.NewFileURI(dir))
	if err != nil {
		return
	}
	d.SetLocation(lister)
}

// extensions normalises "txt", "*.txt" and ".txt" to ".txt".
func extensions(filters []string) []string {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		f = strings.TrimPrefix(strings.TrimSpace(f), "*")
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		out = append(out, strings.ToLower(f))
	}
	return out
}
