// Package deploy holds the recipes that provision a server and ship a project to it.
package deploy

import (
	"context"
	"path"
	"time"

	"deploykit/config"
	"deploykit/prompt"
	"deploykit/providers/backend"
	"deploykit/remote"
	"deploykit/templates"
)

//go:generate mockgen -source=deployer.go -destination=mock/mock_deployer.go -package=mock

// Remote runs commands and manages files on the host being deployed to.
type Remote interface {
	Run(ctx context.Context, command string, opts ...remote.Option) (string, error)
	Sudo(ctx context.Context, command string, opts ...remote.Option) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
	ReadFile(ctx context.Context, path string) (string, error)
	Upload(ctx context.Context, content []byte, path string) error
}

// Syncer keeps the configuration templates of the host up to date.
type Syncer interface {
	Sync(ctx context.Context, name string) (templates.Result, error)
	SyncAll(ctx context.Context) ([]templates.Result, error)
	Put(ctx context.Context, localPath, remotePath string) error
	Templates() []templates.Spec
}

// Local runs commands on the operator's machine.
type Local interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// Observer is told the name of every recipe as it starts.
type Observer func(operation string)

// Deployer runs recipes against a single host.
type Deployer struct {
	Config  *config.Config
	Host    string
	Remote  Remote
	Syncer  Syncer
	Local   Local
	Prompt  prompt.Prompter
	Printer *remote.Printer
	// Backend receives a record of every successful deploy. Nil disables recording.
	Backend  backend.Provider
	Observer Observer
	Now      func() time.Time
}

// New returns a Deployer for host that announces recipes with a banner.
func New(cfg *config.Config, host string, r Remote, s Syncer, l Local, p prompt.Prompter, printer *remote.Printer, b backend.Provider) *Deployer {
	return &Deployer{
		Config:   cfg,
		Host:     host,
		Remote:   r,
		Syncer:   s,
		Local:    l,
		Prompt:   p,
		Printer:  printer,
		Backend:  b,
		Observer: printer.Banner,
		Now:      time.Now,
	}
}

func (d *Deployer) observe(operation string) {
	if d.Observer != nil {
		d.Observer(operation)
	}
}

// virtualenv is the scope of commands run inside the project's virtualenv.
func (d *Deployer) virtualenv() remote.Scope {
	return remote.Scope{
		Dir:      d.Config.VenvPath,
		Activate: d.Config.VenvPath + "/bin/activate",
	}
}

// project is the virtualenv scope moved to the project directory.
func (d *Deployer) project() remote.Scope {
	s := d.virtualenv()
	s.Dir = d.Config.ProjectPath
	return s
}

// repository is the project scope with git pointed at the bare repository.
func (d *Deployer) repository() remote.Scope {
	s := d.project()
	s.Env = map[string]string{
		"GIT_DIR":       d.Config.RepoPath,
		"GIT_WORK_TREE": d.Config.ProjectPath,
	}
	return s
}

func (d *Deployer) projectFile(name string) string {
	return path.Join(d.Config.ProjectPath, name)
}

func (d *Deployer) manifestPath() string {
	if d.Config.ReqsPath == "" {
		return ""
	}
	return d.projectFile(d.Config.ReqsPath)
}
