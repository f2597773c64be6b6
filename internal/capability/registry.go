package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"glasspane/internal/config"
	"glasspane/internal/logger"
)

const addressPrefix = "plugin:"

// Registry is the ordered set of plugins and the commands they expose.
type Registry struct {
	mu       sync.RWMutex
	plugins  []Plugin
	byName   map[string]Plugin
	commands map[string]HandlerFunc
	defaults map[string][]string
	manifest []config.Capability
	logger   logger.Logger
}

func NewRegistry(manifest []config.Capability, log logger.Logger) *Registry {
	return &Registry{
		byName:   make(map[string]Plugin),
		commands: make(map[string]HandlerFunc),
		defaults: make(map[string][]string),
		manifest: manifest,
		logger:   logger.OrNoOp(log),
	}
}

// Register adds p. A second plugin with the same name is ignored and
// Register reports false.
func (r *Registry) Register(p Plugin) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[p.Name()]; ok {
		r.logger.Debug("Capabilities", "plugin already registered", map[string]interface{}{
			"plugin": p.Name(),
		})
		return false
	}
	r.byName[p.Name()] = p
	r.plugins = append(r.plugins, p)
	return true
}

func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Plugin(nil), r.plugins...)
}

func (r *Registry) Lookup(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// SetupAll runs every plugin's Setup in registration order, each with
// its own copy of base. The first failure stops the sequence.
func (r *Registry) SetupAll(base Context) error {
	for _, p := range r.Plugins() {
		ctx := base
		ctx.plugin = p.Name()
		ctx.registry = r
		if err := p.Setup(&ctx); err != nil {
			return fmt.Errorf("setup plugin %q: %w", p.Name(), err)
		}
		r.logger.Debug("Capabilities", "plugin ready", map[string]interface{}{
			"plugin":   p.Name(),
			"commands": len(r.pluginCommands(p.Name())),
		})
	}
	return nil
}

// Invoke runs the command at address ("plugin:<name>|<command>") on behalf of
// the window labelled windowLabel.
func (r *Registry) Invoke(ctx context.Context, windowLabel, address string, args json.RawMessage) (any, error) {
	plugin, command, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	handler, ok := r.commands[key(plugin, command)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, address)
	}

	if !r.Allowed(windowLabel, plugin, command) {
		r.logger.Warning("Capabilities", "command denied", map[string]interface{}{
			"window":  windowLabel,
			"command": address,
		})
		return nil, fmt.Errorf("%w: %s for window %q", ErrForbidden, address, windowLabel)
	}

	return handler(ctx, &Call{
		Window:  windowLabel,
		Plugin:  plugin,
		Command: command,
		Args:    args,
	})
}

// Allowed applies the capability manifest: deny entries win over allow
// entries, and "<plugin>:default" grants the plugin's declared defaults.
func (r *Registry) Allowed(windowLabel, plugin, command string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id := strings.ReplaceAll(command, "_", "-")
	allow := plugin + ":allow-" + id
	deny := plugin + ":deny-" + id
	def := plugin + ":default"

	allowed := false
	for _, capability := range r.manifest {
		if !appliesTo(capability, windowLabel) {
			continue
		}
		for _, p := range capability.Permissions {
			switch p {
			case deny:
				return false
			case allow:
				allowed = true
			case def:
				if slices.Contains(r.defaults[plugin], command) {
					allowed = true
				}
			}
		}
	}
	return allowed
}

// Commands lists every registered address, sorted.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.commands))
	for k := range r.commands {
		out = append(out, addressPrefix+k)
	}
	sort.Strings(out)
	return out
}

// ParseAddress splits "plugin:<name>|<command>".
func ParseAddress(address string) (plugin, command string, err error) {
	rest, ok := strings.CutPrefix(address, addressPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrBadAddress, address)
	}
	plugin, command, ok = strings.Cut(rest, "|")
	if !ok || plugin == "" || command == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadAddress, address)
	}
	return plugin, command, nil
}

func (r *Registry) handle(plugin, command string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[key(plugin, command)] = handler
}

func (r *Registry) setDefaults(plugin string, commands []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[plugin] = append([]string(nil), commands...)
}

func (r *Registry) pluginCommands(plugin string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for k := range r.commands {
		if strings.HasPrefix(k, plugin+"|") {
			out = append(out, k)
		}
	}
	return out
}

func appliesTo(capability config.Capability, label string) bool {
	for _, w := range capability.Windows {
		if w == config.AllWindows || w == label {
			return true
		}
	}
	return false
}

func key(plugin, command string) string {
	return plugin + "|" + command
}
