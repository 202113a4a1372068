package remote

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Local runs commands on the operator's machine, echoing them like remote commands.
type Local struct {
	printer *Printer
	// Dir is the working directory, the current one when empty.
	Dir string
}

func NewLocal(printer *Printer) *Local {
	return &Local{printer: printer}
}

// Run runs name with args, streaming its output to the terminal.
func (l *Local) Run(ctx context.Context, name string, args ...string) error {
	display := shellquote.Join(append([]string{name}, args...)...)
	l.printer.Command(display)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = l.Dir
	cmd.Stdout = l.printer.Writer()
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("local command %q failed: %w", display, err)
	}
	return nil
}

// Output runs name with args and returns its trimmed output without echoing.
func (l *Local) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = l.Dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("local command %q failed: %w", shellquote.Join(append([]string{name}, args...)...), err)
	}
	return strings.TrimSpace(string(out)), nil
}
