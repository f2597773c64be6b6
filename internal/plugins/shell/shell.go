// Package shell runs scoped programs and opens URLs with the system handler.
package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"github.com/dlclark/regexp2"

	"glasspane/internal/capability"
	"glasspane/internal/events"
	"glasspane/internal/logger"
	"glasspane/internal/shutdown"
)

const (
	Name = "shell"

	EventStdout     = "shell://stdout"
	EventStderr     = "shell://stderr"
	EventTerminated = "shell://terminated"

	// maxLineSize bounds one streamed line; longer output stops streaming.
	maxLineSize = 1 << 20
)

var (
	ErrNotAllowed     = errors.New("shell command not allowed")
	ErrInvalidArgs    = errors.New("shell arguments rejected")
	ErrUnknownProcess = errors.New("unknown child process")
)

type Output struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

type Plugin struct {
	mu       sync.Mutex
	app      fyne.App
	scope    map[string]*scopedCommand
	open     *regexp2.Regexp
	children map[int]*exec.Cmd
	events   *events.Bus
	logger   logger.Logger
}

func New() *Plugin {
	return &Plugin{
		scope:    make(map[string]*scopedCommand),
		children: make(map[int]*exec.Cmd),
		logger:   logger.NoOp{},
	}
}

func (p *Plugin) Name() string { return Name }

type commandArgs struct {
	Program string   `json:"program"`
	Args    []string `json:"args"`
}

type killArgs struct {
	PID int `json:"pid"`
}

type openArgs struct {
	Path string `json:"path"`
}

func (p *Plugin) Setup(ctx *capability.Context) error {
	scope, err := compileScope(ctx.Config.Plugins.Shell.Scope)
	if err != nil {
		return err
	}

	var open *regexp2.Regexp
	if pattern := ctx.Config.Plugins.Shell.Open; pattern != "" {
		open, err = regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			return fmt.Errorf("compile open scope: %w", err)
		}
		open.MatchTimeout = matchTimeout
	}

	p.mu.Lock()
	p.app = ctx.App
	p.scope = scope
	p.open = open
	p.events = ctx.Events
	p.logger = logger.OrNoOp(ctx.Logger)
	p.mu.Unlock()

	ctx.Handle("execute", func(c context.Context, call *capability.Call) (any, error) {
		var args commandArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return p.Execute(c, args.Program, args.Args)
	})
	ctx.Handle("spawn", func(_ context.Context, call *capability.Call) (any, error) {
		var args commandArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return p.Spawn(args.Program, args.Args)
	})
	ctx.Handle("kill", func(_ context.Context, call *capability.Call) (any, error) {
		var args killArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return nil, p.Kill(args.PID)
	})
	ctx.Handle("open", func(_ context.Context, call *capability.Call) (any, error) {
		var args openArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return nil, p.Open(args.Path)
	})

	ctx.Defaults("open")
	ctx.OnShutdown(shutdown.Func(p.KillAll))
	return nil
}

// Execute runs a scoped program to completion. A non-zero exit status is
// reported in Output.Code, not as an error.
func (p *Plugin) Execute(ctx context.Context, name string, args []string) (Output, error) {
	cmd, err := p.command(ctx, name, args)
	if err != nil {
		return Output{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		out.Code = exitErr.ExitCode()
	case err != nil:
		return Output{}, fmt.Errorf("run %s: %w", name, err)
	}

	p.logger.Debug("Shell", "command finished", map[string]interface{}{
		"command":     name,
		"code":        out.Code,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return out, nil
}

// Spawn starts a scoped program and streams its output as events.
func (p *Plugin) Spawn(name string, args []string) (int, error) {
	cmd, err := p.command(context.Background(), name, args)
	if err != nil {
		return 0, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("spawn %s: %w", name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("spawn %s: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn %s: %w", name, err)
	}

	pid := cmd.Process.Pid
	p.mu.Lock()
	p.children[pid] = cmd
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go p.stream(&wg, pid, EventStdout, stdout)
	go p.stream(&wg, pid, EventStderr, stderr)

	go func() {
		wg.Wait()
		code := 0
		var exitErr *exec.ExitError
		if err := cmd.Wait(); errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}

		p.mu.Lock()
		delete(p.children, pid)
		p.mu.Unlock()

		p.publish(events.Event{
			Type: EventTerminated,
			Data: map[string]interface{}{"pid": pid, "code": code},
		})
	}()

	return pid, nil
}

func (p *Plugin) Kill(pid int) error {
	p.mu.Lock()
	cmd, ok := p.children[pid]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownProcess, pid)
	}
	return cmd.Process.Kill()
}

func (p *Plugin) KillAll() {
	p.mu.Lock()
	children := make([]*exec.Cmd, 0, len(p.children))
	for _, cmd := range p.children {
		children = append(children, cmd)
	}
	p.mu.Unlock()

	for _, cmd := range children {
		_ = cmd.Process.Kill()
	}
}

// Open hands target to the system handler if it matches the open scope.
func (p *Plugin) Open(target string) error {
	p.mu.Lock()
	re, app := p.open, p.app
	p.mu.Unlock()

	if re == nil {
		return fmt.Errorf("%w: opening is disabled", ErrNotAllowed)
	}
	if ok, err := re.MatchString(target); err != nil || !ok {
		return fmt.Errorf("%w: %q is outside the open scope", ErrNotAllowed, target)
	}

	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse %q: %w", target, err)
	}
	return app.OpenURL(u)
}

func (p *Plugin) command(ctx context.Context, name string, args []string) (*exec.Cmd, error) {
	p.mu.Lock()
	scoped, ok := p.scope[name]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotAllowed, name)
	}
	if err := scoped.validate(args); err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, scoped.program, args...), nil
}

func (p *Plugin) stream(wg *sync.WaitGroup, pid int, eventType string, r io.Reader) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		p.publish(events.Event{
			Type: eventType,
			Data: map[string]interface{}{"pid": pid, "line": scanner.Text()},
		})
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warning("Shell", "output stream abandoned", map[string]interface{}{
			"pid":    pid,
			"stream": eventType,
			"error":  err.Error(),
		})
		// keep the pipe empty so the child can exit
		_, _ = io.Copy(io.Discard, r)
	}
}

func (p *Plugin) publish(e events.Event) {
	p.mu.Lock()
	bus := p.events
	p.mu.Unlock()
	if bus != nil {
		bus.Publish(e)
	}
}
