package shell

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"

	"glasspane/internal/config"
)

const matchTimeout = time.Second

type argMatcher struct {
	value string
	re    *regexp2.Regexp
}

func (m argMatcher) match(arg string) bool {
	if m.re == nil {
		return arg == m.value
	}
	ok, err := m.re.MatchString(arg)
	return err == nil && ok
}

type scopedCommand struct {
	name    string
	program string
	anyArgs bool
	args    []argMatcher
}

func (c *scopedCommand) validate(args []string) error {
	if c.anyArgs {
		return nil
	}
	if len(args) != len(c.args) {
		return fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidArgs, c.name, len(c.args), len(args))
	}
	for i, arg := range args {
		if !c.args[i].match(arg) {
			return fmt.Errorf("%w: %s argument %d rejected", ErrInvalidArgs, c.name, i)
		}
	}
	return nil
}

func compileScope(entries []config.ShellCommand) (map[string]*scopedCommand, error) {
	scope := make(map[string]*scopedCommand, len(entries))
	for _, e := range entries {
		cmd := &scopedCommand{name: e.Name, program: e.Cmd, anyArgs: e.AllowAnyArgs}
		for _, a := range e.Args {
			if a.Validator == "" {
				cmd.args = append(cmd.args, argMatcher{value: a.Value})
				continue
			}
			re, err := compileAnchored(a.Validator)
			if err != nil {
				return nil, fmt.Errorf("scope %q: %w", e.Name, err)
			}
			cmd.args = append(cmd.args, argMatcher{re: re})
		}
		scope[e.Name] = cmd
	}
	return scope, nil
}

func compileAnchored(pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile("^(?:"+pattern+")$", regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", pattern, err)
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}
