// Package fs gives scoped file access rooted at the application data directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"glasspane/internal/capability"
	"glasspane/internal/events"
	"glasspane/internal/logger"
	"glasspane/internal/shutdown"
)

const Name = "fs"

var (
	ErrOutsideScope = errors.New("path outside filesystem scope")
	ErrNotReady     = errors.New("fs plugin not set up")
)

type DirEntry struct {
	Name   string `json:"name"`
	IsDir  bool   `json:"is_dir"`
	IsFile bool   `json:"is_file"`
	Size   int64  `json:"size"`
}

type FileInfo struct {
	Name    string      `json:"name"`
	Size    int64       `json:"size"`
	IsDir   bool        `json:"is_dir"`
	Mode    os.FileMode `json:"mode"`
	ModTime time.Time   `json:"mod_time"`
}

type Plugin struct {
	mu       sync.RWMutex
	fs       afero.Fs
	base     *afero.BasePathFs
	root     string
	realRoot string
	readOnly bool
	watches  map[string]*watch
	events   *events.Bus
	logger   logger.Logger
}

func New() *Plugin {
	return &Plugin{watches: make(map[string]*watch), logger: logger.NoOp{}}
}

// NewWithFs serves files from fsys instead of the OS. Watching is not
// available on such a plugin.
func NewWithFs(fsys afero.Fs) *Plugin {
	p := New()
	p.fs = fsys
	return p
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Setup(ctx *capability.Context) error {
	cfg := ctx.Config.Plugins.FS

	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = ctx.Events
	p.logger = logger.OrNoOp(ctx.Logger)
	p.readOnly = cfg.ReadOnly

	if p.fs == nil {
		root := cfg.Root
		if root == "" {
			root = ctx.DataDir
		}
		if root == "" {
			return fmt.Errorf("%w: no root directory", ErrNotReady)
		}
		root, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve fs root: %w", err)
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("create fs root: %w", err)
		}
		realRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			return fmt.Errorf("resolve fs root: %w", err)
		}
		p.root = root
		p.realRoot = realRoot
		p.base = afero.NewBasePathFs(afero.NewOsFs(), root).(*afero.BasePathFs)
		p.fs = p.base
	}
	if p.readOnly {
		p.fs = afero.NewReadOnlyFs(p.fs)
	}

	p.registerCommands(ctx)
	ctx.OnShutdown(shutdown.Func(p.UnwatchAll))

	p.logger.Debug("FS", "filesystem scope ready", map[string]interface{}{
		"root":      p.root,
		"read_only": p.readOnly,
	})
	return nil
}

// Root is the OS directory the scope is rooted at, empty for non-OS filesystems.
func (p *Plugin) Root() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.root
}

func (p *Plugin) ReadFile(name string) ([]byte, error) {
	fsys, path, err := p.resolve(name)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(fsys, path)
}

func (p *Plugin) ReadTextFile(name string) (string, error) {
	data, err := p.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile replaces name with data, or appends when appendData is set.
func (p *Plugin) WriteFile(name string, data []byte, appendData bool) error {
	fsys, path, err := p.resolve(name)
	if err != nil {
		return err
	}
	if !appendData {
		return afero.WriteFile(fsys, path, data, 0o644)
	}

	f, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (p *Plugin) WriteTextFile(name, contents string, appendData bool) error {
	return p.WriteFile(name, []byte(contents), appendData)
}

func (p *Plugin) ReadDir(name string) ([]DirEntry, error) {
	fsys, path, err := p.resolve(name)
	if err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(fsys, path)
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, DirEntry{
			Name:   info.Name(),
			IsDir:  info.IsDir(),
			IsFile: info.Mode().IsRegular(),
			Size:   info.Size(),
		})
	}
	return entries, nil
}

func (p *Plugin) Mkdir(name string, recursive bool) error {
	fsys, path, err := p.resolve(name)
	if err != nil {
		return err
	}
	if recursive {
		return fsys.MkdirAll(path, 0o755)
	}
	return fsys.Mkdir(path, 0o755)
}

func (p *Plugin) Remove(name string, recursive bool) error {
	fsys, path, err := p.resolve(name)
	if err != nil {
		return err
	}
	if path == "." {
		return fmt.Errorf("%w: refusing to remove the scope root", ErrOutsideScope)
	}
	if recursive {
		return fsys.RemoveAll(path)
	}
	return fsys.Remove(path)
}

func (p *Plugin) Rename(oldName, newName string) error {
	fsys, from, err := p.resolve(oldName)
	if err != nil {
		return err
	}
	_, to, err := p.resolve(newName)
	if err != nil {
		return err
	}
	return fsys.Rename(from, to)
}

func (p *Plugin) CopyFile(src, dst string) error {
	fsys, from, err := p.resolve(src)
	if err != nil {
		return err
	}
	_, to, err := p.resolve(dst)
	if err != nil {
		return err
	}

	in, err := fsys.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fsys.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (p *Plugin) Exists(name string) (bool, error) {
	fsys, path, err := p.resolve(name)
	if err != nil {
		return false, err
	}
	return afero.Exists(fsys, path)
}

func (p *Plugin) Stat(name string) (FileInfo, error) {
	fsys, path, err := p.resolve(name)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := fsys.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}, nil
}

func (p *Plugin) resolve(name string) (afero.Fs, string, error) {
	path, err := cleanPath(name)
	if err != nil {
		return nil, "", err
	}

	p.mu.RLock()
	fsys, root, realRoot := p.fs, p.root, p.realRoot
	p.mu.RUnlock()
	if fsys == nil {
		return nil, "", ErrNotReady
	}
	if realRoot != "" {
		if err := confine(root, realRoot, path); err != nil {
			return nil, "", err
		}
	}
	return fsys, path, nil
}

type pathArgs struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type writeArgs struct {
	Path     string `json:"path"`
	Data     []byte `json:"data"`
	Contents string `json:"contents"`
	Append   bool   `json:"append"`
}

type moveArgs struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type unwatchArgs struct {
	ID string `json:"id"`
}

func (p *Plugin) registerCommands(ctx *capability.Context) {
	bindPath := func(call *capability.Call) (pathArgs, error) {
		var args pathArgs
		err := call.Bind(&args)
		return args, err
	}

	ctx.Handle("read_file", func(_ context.Context, call *capability.Call) (any, error) {
		args, err := bindPath(call)
		if err != nil {
			return nil, err
		}
		return p.ReadFile(args.Path)
	})
	ctx.Handle("read_text_file", func(_ context.Context, call *capability.Call) (any, error) {
		args, err := bindPath(call)
		if err != nil {
			return nil, err
		}
		return p.ReadTextFile(args.Path)
	})
	ctx.Handle("write_file", func(_ context.Context, call *capability.Call) (any, error) {
		var args writeArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return nil, p.WriteFile(args.Path, args.Data, args.Append)
	})
	ctx.Handle("write_text_file", func(_ context.Context, call *capability.Call) (any, error) {
		var args writeArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return nil, p.WriteTextFile(args.Path, args.Contents, args.Append)
	})
	ctx.Handle("read_dir", func(_ context.Context, call *capability.Call) (any, error) {
		args, err := bindPath(call)
		if err != nil {
			return nil, err
		}
		return p.ReadDir(args.Path)
	})
	ctx.Handle("mkdir", func(_ context.Context, call *capability.Call) (any, error) {
		args, err := bindPath(call)
		if err != nil {
			return nil, err
		}
		return nil, p.Mkdir(args.Path, args.Recursive)
	})
	ctx.Handle("remove", func(_ context.Context, call *capability.Call) (any, error) {
		args, err := bindPath(call)
		if err != nil {
			return nil, err
		}
		return nil, p.Remove(args.Path, args.Recursive)
	})
	ctx.Handle("rename", func(_ context.Context, call *capability.Call) (any, error) {
		var args moveArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return nil, p.Rename(args.From, args.To)
	})
	ctx.Handle("copy_file", func(_ context.Context, call *capability.Call) (any, error) {
		var args moveArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return nil, p.CopyFile(args.From, args.To)
	})
	ctx.Handle("exists", func(_ context.Context, call *capability.Call) (any, error) {
		args, err := bindPath(call)
		if err != nil {
			return nil, err
		}
		return p.Exists(args.Path)
	})
	ctx.Handle("stat", func(_ context.Context, call *capability.Call) (any, error) {
		args, err := bindPath(call)
		if err != nil {
			return nil, err
		}
		return p.Stat(args.Path)
	})
	ctx.Handle("watch", func(_ context.Context, call *capability.Call) (any, error) {
		args, err := bindPath(call)
		if err != nil {
			return nil, err
		}
		return p.Watch(args.Path, args.Recursive, nil)
	})
	ctx.Handle("unwatch", func(_ context.Context, call *capability.Call) (any, error) {
		var args unwatchArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return nil, p.Unwatch(args.ID)
	})

	ctx.Defaults("read_file", "read_text_file", "read_dir", "exists", "stat")
}
