package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"k8s.io/klog/v2"
)

// Option changes how a single command is issued.
type Option func(*Options)

// Options is the combined effect of a list of Option.
type Options struct {
	Quiet bool
	User  string
	Scope *Scope
}

// Quiet suppresses echoing the command to the terminal.
func Quiet() Option {
	return func(o *Options) { o.Quiet = true }
}

// AsUser runs a privileged command as user instead of root.
func AsUser(user string) Option {
	return func(o *Options) { o.User = user }
}

// WithScope runs the command inside scope.
func WithScope(scope Scope) Option {
	return func(o *Options) { o.Scope = &scope }
}

// ApplyOptions folds opts into a single Options value, later options winning.
func ApplyOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Executor issues commands over a Transport, echoing every non-quiet command to the
// operator before it runs. It never retries.
type Executor struct {
	transport    Transport
	printer      *Printer
	sudoPassword string
}

// NewExecutor returns an Executor. sudoPassword is fed to sudo when set, otherwise sudo
// is run non-interactively.
func NewExecutor(transport Transport, printer *Printer, sudoPassword string) *Executor {
	return &Executor{
		transport:    transport,
		printer:      printer,
		sudoPassword: sudoPassword,
	}
}

// Run runs command as the connected user and returns its trimmed output.
func (e *Executor) Run(ctx context.Context, command string, opts ...Option) (string, error) {
	o := ApplyOptions(opts...)
	if !o.Quiet {
		e.printer.Command(command)
	}
	full := o.Scope.Wrap(command)
	klog.V(4).Infof("[remote] run: %s", full)
	out, err := e.exec(ctx, full, command)
	return strings.TrimSpace(out), err
}

// Sudo runs command with root privileges, or as the AsUser user, and returns its trimmed output.
func (e *Executor) Sudo(ctx context.Context, command string, opts ...Option) (string, error) {
	out, err := e.sudo(ctx, command, opts...)
	return strings.TrimSpace(out), err
}

func (e *Executor) sudo(ctx context.Context, command string, opts ...Option) (string, error) {
	o := ApplyOptions(opts...)
	if !o.Quiet {
		e.printer.Command(command)
	}
	inner := o.Scope.Wrap(command)
	klog.V(4).Infof("[remote] sudo (user=%q): %s", o.User, inner)
	return e.exec(ctx, e.sudoCommand(inner, o.User), command)
}

func (e *Executor) sudoCommand(command, user string) string {
	parts := []string{"sudo"}
	if e.sudoPassword != "" {
		parts = append(parts, "-S", "-p", "''")
	} else {
		parts = append(parts, "-n")
	}
	parts = append(parts, "-H")
	if user != "" {
		parts = append(parts, "-u", shellquote.Join(user))
	}
	parts = append(parts, "bash", "-c", shellquote.Join(command))
	full := strings.Join(parts, " ")
	if e.sudoPassword != "" {
		full = "printf '%s\\n' " + shellquote.Join(e.sudoPassword) + " | " + full
	}
	return full
}

func (e *Executor) exec(ctx context.Context, full, display string) (string, error) {
	out, err := e.transport.Exec(ctx, full)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			// report what the operator saw, never the sudo wrapper
			exitErr.Command = display
			return out, exitErr
		}
		return out, fmt.Errorf("remote command %q failed: %w", display, err)
	}
	return out, nil
}

// Exists reports whether path exists on the remote host.
func (e *Executor) Exists(ctx context.Context, path string) (bool, error) {
	_, err := e.Run(ctx, "test -e "+shellquote.Join(path), Quiet())
	if err == nil {
		return true, nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Status == 1 {
		return false, nil
	}
	return false, err
}

// ReadFile returns the untrimmed content of the remote file at path, read with root privileges.
func (e *Executor) ReadFile(ctx context.Context, path string) (string, error) {
	return e.sudo(ctx, "cat "+shellquote.Join(path), Quiet())
}

// uploadMode is the mode uploads are created with and keep after the move.
const uploadMode os.FileMode = 0o600

// Upload places content at path with root privileges, overwriting any existing file. The
// file is readable by its owner only unless a mode is applied afterwards. No backup of the
// previous content is kept.
func (e *Executor) Upload(ctx context.Context, content []byte, path string) error {
	e.printer.Command("put " + path)
	tmp := "/tmp/deploykit-" + uuid.NewString()
	if err := e.transport.Upload(ctx, content, tmp, uploadMode); err != nil {
		return fmt.Errorf("unable to upload %s: %w", path, err)
	}
	if _, err := e.Sudo(ctx, fmt.Sprintf("mv %s %s", tmp, shellquote.Join(path)), Quiet()); err != nil {
		if _, rmErr := e.Run(ctx, "rm -f "+tmp, Quiet()); rmErr != nil {
			klog.Warningf("unable to remove temporary upload %s: %v", tmp, rmErr)
		}
		return err
	}
	return nil
}

// Printer returns the printer commands are echoed to.
func (e *Executor) Printer() *Printer {
	return e.printer
}
