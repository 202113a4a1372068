package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/helloyi/go-sshclient"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"k8s.io/klog/v2"
)

//go:generate mockgen -source=transport.go -destination=mock/mock_transport.go -package=mock

// Transport executes commands and writes files on a single remote host.
type Transport interface {
	// Exec runs command and returns its standard output. A non-zero exit status is
	// returned as *ExitError together with whatever output was produced.
	Exec(ctx context.Context, command string) (string, error)
	// Upload writes content to path as the connected user with the given permissions,
	// replacing any existing file.
	Upload(ctx context.Context, content []byte, path string, mode os.FileMode) error
	Close() error
}

// ExitError reports a remote command that exited with a non-zero status.
type ExitError struct {
	Command string
	Status  int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("remote command %q exited with status %d", e.Command, e.Status)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// DialConfig describes how to reach and authenticate against a host.
type DialConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	KeyPath               string
	KnownHosts            string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration
}

// SSHTransport is a Transport backed by an SSH session.
type SSHTransport struct {
	Addr   string
	client *sshclient.Client
}

// Dial opens an SSH connection described by cfg.
func Dial(cfg DialConfig) (*SSHTransport, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	addr := hostAddr(cfg.Host, cfg.Port)
	klog.V(4).Infof("[ssh] dialing %s@%s", cfg.User, addr)
	client, err := sshclient.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", addr, err)
	}
	klog.Infof("Connected to %s@%s", cfg.User, addr)
	return &SSHTransport{Addr: addr, client: client}, nil
}

func (t *SSHTransport) Exec(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var stdout, stderr bytes.Buffer
	err := t.client.Cmd(command).SetStdio(&stdout, &stderr).Run()
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &ExitError{
				Command: command,
				Status:  exitErr.ExitStatus(),
				Stderr:  strings.TrimSpace(stderr.String()),
			}
		}
		return stdout.String(), err
	}
	return stdout.String(), nil
}

func (t *SSHTransport) Upload(ctx context.Context, content []byte, path string, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := sftp.NewClient(t.client.UnderlyingClient())
	if err != nil {
		return fmt.Errorf("unable to start sftp session: %w", err)
	}
	defer client.Close()

	f, err := client.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", path, err)
	}
	// Permissions are set before any content is written.
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return fmt.Errorf("unable to chmod %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	return f.Close()
}

func (t *SSHTransport) Close() error {
	return t.client.Close()
}

func authMethods(cfg DialConfig) ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyPath != "" {
		key, err := os.ReadFile(expandHome(cfg.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("unable to read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && cfg.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(cfg.Password))
		}
		if err != nil {
			return nil, fmt.Errorf("unable to parse ssh key %s: %w", cfg.KeyPath, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh credentials configured, set ssh_pass or ssh_key_path")
	}
	return auth, nil
}

func hostKeyCallback(cfg DialConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		klog.Warning("host key verification is disabled")
		return ssh.InsecureIgnoreHostKey(), nil //nolint: gosec
	}
	callback, err := knownhosts.New(expandHome(cfg.KnownHosts))
	if err != nil {
		return nil, fmt.Errorf("unable to load known hosts %s: %w", cfg.KnownHosts, err)
	}
	return callback, nil
}

func hostAddr(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
