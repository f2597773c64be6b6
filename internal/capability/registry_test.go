package capability

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glasspane/internal/config"
)

type echoPlugin struct {
	name     string
	setupErr error
	setups   int
}

func (p *echoPlugin) Name() string { return p.name }

func (p *echoPlugin) Setup(ctx *Context) error {
	p.setups++
	if p.setupErr != nil {
		return p.setupErr
	}
	ctx.Handle("echo", func(_ context.Context, call *Call) (any, error) {
		var args struct {
			Text string `json:"text"`
		}
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return call.Window + ":" + args.Text, nil
	})
	ctx.Handle("wipe_all", func(context.Context, *Call) (any, error) { return "wiped", nil })
	ctx.Defaults("echo")
	return nil
}

func manifest(perms ...string) []config.Capability {
	return []config.Capability{{Identifier: "default", Windows: []string{"main"}, Permissions: perms}}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry(nil, nil)
	first := &echoPlugin{name: "echo"}

	assert.True(t, r.Register(first))
	assert.False(t, r.Register(&echoPlugin{name: "echo"}))
	require.Len(t, r.Plugins(), 1)

	p, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.Same(t, first, p)
}

func TestSetupAllStopsOnError(t *testing.T) {
	r := NewRegistry(nil, nil)
	boom := errors.New("boom")
	a := &echoPlugin{name: "a", setupErr: boom}
	b := &echoPlugin{name: "b"}
	r.Register(a)
	r.Register(b)

	err := r.SetupAll(Context{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `"a"`)
	assert.Equal(t, 0, b.setups)
}

func TestInvokeDefaultPermission(t *testing.T) {
	r := NewRegistry(manifest("echo:default"), nil)
	r.Register(&echoPlugin{name: "echo"})
	require.NoError(t, r.SetupAll(Context{}))

	out, err := r.Invoke(context.Background(), "main", "plugin:echo|echo", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "main:hi", out)

	_, err = r.Invoke(context.Background(), "main", "plugin:echo|wipe_all", nil)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = r.Invoke(context.Background(), "settings", "plugin:echo|echo", nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestInvokeAllowAndDeny(t *testing.T) {
	r := NewRegistry([]config.Capability{
		{Identifier: "base", Windows: []string{"*"}, Permissions: []string{"echo:default", "echo:allow-wipe-all"}},
		{Identifier: "locked", Windows: []string{"kiosk"}, Permissions: []string{"echo:deny-echo"}},
	}, nil)
	r.Register(&echoPlugin{name: "echo"})
	require.NoError(t, r.SetupAll(Context{}))

	out, err := r.Invoke(context.Background(), "main", "plugin:echo|wipe_all", nil)
	require.NoError(t, err)
	assert.Equal(t, "wiped", out)

	assert.True(t, r.Allowed("main", "echo", "echo"))
	assert.False(t, r.Allowed("kiosk", "echo", "echo"))
	assert.True(t, r.Allowed("kiosk", "echo", "wipe_all"))
}

func TestInvokeErrors(t *testing.T) {
	r := NewRegistry(manifest("echo:default"), nil)
	r.Register(&echoPlugin{name: "echo"})
	require.NoError(t, r.SetupAll(Context{}))

	_, err := r.Invoke(context.Background(), "main", "echo|echo", nil)
	assert.ErrorIs(t, err, ErrBadAddress)

	_, err = r.Invoke(context.Background(), "main", "plugin:echo|missing", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = r.Invoke(context.Background(), "main", "plugin:echo|echo", json.RawMessage(`{"text":`))
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestParseAddress(t *testing.T) {
	plugin, command, err := ParseAddress("plugin:fs|read_text_file")
	require.NoError(t, err)
	assert.Equal(t, "fs", plugin)
	assert.Equal(t, "read_text_file", command)

	for _, bad := range []string{"", "plugin:", "plugin:fs", "plugin:|x", "plugin:fs|", "fs|x"} {
		_, _, err := ParseAddress(bad)
		assert.ErrorIs(t, err, ErrBadAddress, bad)
	}
}

func TestCommandsSorted(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register(&echoPlugin{name: "echo"})
	require.NoError(t, r.SetupAll(Context{}))

	assert.Equal(t, []string{"plugin:echo|echo", "plugin:echo|wipe_all"}, r.Commands())
}
