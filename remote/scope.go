package remote

import (
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Scope is the execution context a command runs in: a working directory, an optional
// activation script sourced beforehand and extra environment variables.
type Scope struct {
	Dir      string
	Activate string
	Env      map[string]string
}

// Wrap prefixes command with the shell statements that establish s.
func (s *Scope) Wrap(command string) string {
	if s == nil {
		return command
	}
	var parts []string
	if s.Dir != "" {
		parts = append(parts, "cd "+shellquote.Join(s.Dir))
	}
	if s.Activate != "" {
		parts = append(parts, "source "+shellquote.Join(s.Activate))
	}
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, "export "+k+"="+shellquote.Join(s.Env[k]))
	}
	if len(parts) == 0 {
		return command
	}
	return strings.Join(append(parts, command), " && ")
}
