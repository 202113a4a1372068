package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"k8s.io/klog/v2"

	"deploykit/prompt"
	"deploykit/remote"
	"deploykit/requirements"
	"deploykit/types"
)

const (
	basePackages = "nginx libjpeg-dev python-dev python-setuptools git-core " +
		"postgresql libpq-dev memcached supervisor python-pip"
	projectPackages = "gunicorn setproctitle south psycopg2 " +
		"django-compressor python-memcached"

	lastCommit = "last.commit"
	lastDB     = "last.db"
	lastTar    = "last.tar"
)

// ErrProjectMissing is returned when deploying to a host the project was never created on.
var ErrProjectMissing = errors.New("project does not exist in host server")

// Install installs the base system and Python tooling for the entire server.
func (d *Deployer) Install(ctx context.Context) error {
	d.observe("install")
	cfg := d.Config
	home := "/home/" + cfg.User

	locale := "LC_ALL=" + cfg.Locale
	current, err := d.Remote.Sudo(ctx, "cat /etc/default/locale")
	if err != nil {
		return err
	}
	if !strings.Contains(current, locale) {
		if _, err := d.Remote.Sudo(ctx, "update-locale "+locale); err != nil {
			return err
		}
	}

	steps := []func() (string, error){
		func() (string, error) { return d.Remote.Sudo(ctx, "apt-get update -y -q >> /dev/null") },
		func() (string, error) { return d.Apt(ctx, basePackages) },
		func() (string, error) { return d.Remote.Sudo(ctx, "pip install virtualenv virtualenvwrapper") },
		func() (string, error) { return d.Remote.Run(ctx, fmt.Sprintf("mkdir -p %s/{tmp,logs,etc}", home)) },
		func() (string, error) {
			return d.Remote.Run(ctx, fmt.Sprintf("mkdir -p %s/etc/supervisor/conf.d", home))
		},
		func() (string, error) {
			return "", d.Syncer.Put(ctx, "deploy/supervisord.conf", home+"/etc/supervisord.conf")
		},
		func() (string, error) {
			return d.Remote.Sudo(ctx, fmt.Sprintf("chown %s %s/etc/supervisord.conf", cfg.User, home))
		},
		func() (string, error) {
			return d.Remote.Run(ctx, fmt.Sprintf("supervisord -c %s/etc/supervisord.conf", home))
		},
		func() (string, error) { return d.Remote.Run(ctx, "mkdir -p "+cfg.VenvHome) },
		func() (string, error) {
			return d.Remote.Run(ctx, fmt.Sprintf("echo 'export WORKON_HOME=%s' >> %s/.bashrc", cfg.VenvHome, home))
		},
		func() (string, error) {
			return d.Remote.Run(ctx, fmt.Sprintf("echo 'source /usr/local/bin/virtualenvwrapper.sh' >> %s/.bashrc", home))
		},
	}
	if err := runSteps(steps); err != nil {
		return err
	}
	d.Printer.Println("Successfully set up git, pip, virtualenv, supervisor, and memcached.")
	return nil
}

// Create sets up a new virtualenv or reuses an existing one, creates the database and
// its user, ships the code and sets up the project.
func (d *Deployer) Create(ctx context.Context) error {
	d.observe("create")
	cfg := d.Config

	if _, err := d.Remote.Run(ctx, "mkdir -p "+cfg.ProjectPath); err != nil {
		return err
	}
	if err := d.createVirtualenv(ctx); err != nil {
		return err
	}

	if cfg.DeployTool == "git" {
		if err := d.createRepository(ctx); err != nil {
			return err
		}
	} else {
		d.Printer.Println("Uploading all files to server")
		if err := d.rsync(ctx); err != nil {
			return err
		}
	}
	d.Printer.Println("All files pushed to remote server.")

	if err := d.createDatabase(ctx); err != nil {
		return err
	}
	if _, err := d.Syncer.Sync(ctx, "settings"); err != nil {
		return err
	}
	return d.setupProject(ctx)
}

func (d *Deployer) createVirtualenv(ctx context.Context) error {
	cfg := d.Config
	if _, err := d.Remote.Run(ctx, "mkdir -p "+cfg.VenvHome); err != nil {
		return err
	}
	home := remote.WithScope(remote.Scope{Dir: cfg.VenvHome})
	exists, err := d.Remote.Exists(ctx, cfg.VenvPath)
	if err != nil {
		return err
	}
	if exists {
		reinstall, err := d.Prompt.Confirm(fmt.Sprintf("Virtualenv already exists: %s. Reinstall?", cfg.VenvName))
		if err != nil {
			return err
		}
		if reinstall {
			d.Printer.Println("Reinstalling virtualenv from scratch.")
			if _, err := d.Remote.Run(ctx, "rm -r "+cfg.VenvName, home); err != nil {
				return err
			}
			if _, err := d.Remote.Run(ctx, "virtualenv "+cfg.VenvName, home); err != nil {
				return err
			}
		} else {
			d.Printer.Println(fmt.Sprintf("Using existing virtualenv: %s.", cfg.VenvName))
		}
	} else {
		if err := prompt.Require(d.Prompt, fmt.Sprintf("Virtualenv does not exist: %s. Create?", cfg.VenvName)); err != nil {
			return err
		}
		d.Printer.Println("Creating virtualenv.")
		if _, err := d.Remote.Run(ctx, "virtualenv "+cfg.VenvName, home); err != nil {
			return err
		}
		d.Printer.Println(fmt.Sprintf("New virtualenv: %s.", cfg.VenvPath))
	}
	// keep the system site-packages out of the virtualenv
	_, err = d.Remote.Run(ctx, fmt.Sprintf("touch %s/lib/python2.7/sitecustomize.py", cfg.VenvName), home)
	return err
}

func (d *Deployer) createRepository(ctx context.Context) error {
	cfg := d.Config
	exists, err := d.Remote.Exists(ctx, cfg.RepoPath)
	if err != nil {
		return err
	}
	if !exists {
		d.Printer.Println("Setting up git repo")
		if _, err := d.Remote.Run(ctx, "mkdir -p "+cfg.RepoPath); err != nil {
			return err
		}
		if _, err := d.Remote.Run(ctx, "git init --bare", remote.WithScope(remote.Scope{Dir: cfg.RepoPath})); err != nil {
			return err
		}
	}
	if _, err := d.Syncer.Sync(ctx, "post receive hook"); err != nil {
		return err
	}
	d.Printer.Println(fmt.Sprintf("Git repo ready at %s", cfg.RepoPath))

	url := fmt.Sprintf("ssh://%s@%s%s", cfg.User, d.Host, cfg.RepoPath)
	if err := d.Local.Run(ctx, "git", "remote", "add", "production", url); err != nil {
		return err
	}
	d.Printer.Println("Added new remote 'production'. You can now push to it with git push production.")
	d.Printer.Println("Pushing master branch.")
	return d.Local.Run(ctx, "git", "push", "production", "+master:refs/heads/master")
}

func (d *Deployer) createDatabase(ctx context.Context) error {
	cfg := d.Config
	pw, err := cfg.DBPass(d.Prompt)
	if err != nil {
		return err
	}
	escaped := sqlString(pw)
	userSQL := fmt.Sprintf("CREATE USER %s WITH ENCRYPTED PASSWORD '%s';", cfg.ProjectName, escaped)
	if _, err := d.Psql(ctx, userSQL, false); err != nil {
		return err
	}
	d.Printer.Command(shadow(userSQL, escaped))
	_, err = d.Psql(ctx, fmt.Sprintf("CREATE DATABASE %s WITH OWNER %s ENCODING = 'UTF8' "+
		"LC_CTYPE = '%s' LC_COLLATE = '%s' TEMPLATE template0;",
		cfg.ProjectName, cfg.ProjectName, cfg.Locale, cfg.Locale), true)
	return err
}

func (d *Deployer) setupProject(ctx context.Context) error {
	cfg := d.Config
	if cfg.ReqsPath != "" {
		if _, err := d.Pip(ctx, "-r "+d.manifestPath()); err != nil {
			return err
		}
	}
	if _, err := d.Pip(ctx, projectPackages); err != nil {
		return err
	}
	if _, err := d.Manage(ctx, "createdb --noinput --nodata"); err != nil {
		return err
	}
	_, err := d.Python(ctx, "from django.conf import settings;"+
		"from django.contrib.sites.models import Site;"+
		fmt.Sprintf("Site.objects.filter(id=settings.SITE_ID).update(domain='%s');", pyString(cfg.Domains[0])), true)
	if err != nil {
		return err
	}
	for _, domain := range cfg.Domains {
		_, err := d.Python(ctx, "from django.contrib.sites.models import Site;"+
			fmt.Sprintf("Site.objects.get_or_create(domain='%s');", pyString(domain)), true)
		if err != nil {
			return err
		}
	}
	if cfg.AdminPass != "" {
		pw := pyString(cfg.AdminPass)
		userPy := "from mezzanine.utils.models import get_user_model;" +
			"User = get_user_model();" +
			"u, _ = User.objects.get_or_create(username='admin');" +
			"u.is_staff = u.is_superuser = True;" +
			fmt.Sprintf("u.set_password('%s');", pw) +
			"u.save();"
		if _, err := d.Python(ctx, userPy, false); err != nil {
			return err
		}
		d.Printer.Command(shadow(userPy, pw))
	}
	return nil
}

// Remove blows away the project: code, repository, templates, database and, when venv
// is set, the virtualenv.
func (d *Deployer) Remove(ctx context.Context, venv bool) error {
	d.observe("remove")
	cfg := d.Config

	if venv {
		exists, err := d.Remote.Exists(ctx, cfg.VenvPath)
		if err != nil {
			return err
		}
		if exists {
			if _, err := d.Remote.Run(ctx, "rm -rf "+cfg.VenvPath); err != nil {
				return err
			}
			d.Printer.Println(fmt.Sprintf("Removed remote virtualenv: %s.", cfg.VenvName))
		}
	}

	exists, err := d.Remote.Exists(ctx, cfg.RepoPath)
	if err != nil {
		return err
	}
	if exists {
		if _, err := d.Remote.Run(ctx, "rm -rf "+cfg.RepoPath); err != nil {
			return err
		}
		if _, err := d.Local.Output(ctx, "git", "remote", "rm", "production"); err != nil {
			klog.Warningf("unable to remove git remote production: %v", err)
		}
		d.Printer.Println(fmt.Sprintf("Removed remote git repo: %s.", cfg.RepoPath))
	}

	for _, spec := range d.Syncer.Templates() {
		exists, err := d.Remote.Exists(ctx, spec.RemotePath)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if _, err := d.Remote.Sudo(ctx, "rm "+shellquote.Join(spec.RemotePath)); err != nil {
			return err
		}
		d.Printer.Println(fmt.Sprintf("Removed remote file: %s.", spec.RemotePath))
	}

	exists, err = d.Remote.Exists(ctx, cfg.ProjectPath)
	if err != nil {
		return err
	}
	if exists {
		if _, err := d.Remote.Run(ctx, "rm -rf "+cfg.ProjectPath); err != nil {
			return err
		}
	}
	steps := []func() (string, error){
		func() (string, error) {
			return d.Psql(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s;", cfg.ProjectName), true)
		},
		func() (string, error) {
			return d.Psql(ctx, fmt.Sprintf("DROP USER IF EXISTS %s;", cfg.ProjectName), true)
		},
		func() (string, error) { return d.Remote.Run(ctx, "supervisorctl update") },
	}
	return runSteps(steps)
}

// Restart restarts the gunicorn workers of the project.
func (d *Deployer) Restart(ctx context.Context) error {
	d.observe("restart")
	pidPath := d.projectFile("gunicorn.pid")
	exists, err := d.Remote.Exists(ctx, pidPath)
	if err != nil {
		return err
	}
	if exists {
		_, err = d.Remote.Run(ctx, fmt.Sprintf("kill -HUP `cat %s`", pidPath))
	} else {
		_, err = d.Remote.Run(ctx, "supervisorctl restart gunicorn_"+d.Config.ProjectName)
	}
	return err
}

// Deploy ships the latest version of the project: templates, code, requirements,
// static files and database migrations, then restarts the workers. With backup set the
// current commit, database and static files are saved first so Rollback can restore
// them. first marks the initial deploy, where supervisor picks the project up instead
// of a restart.
func (d *Deployer) Deploy(ctx context.Context, first, backup bool) error {
	d.observe("deploy")
	cfg := d.Config

	exists, err := d.Remote.Exists(ctx, cfg.ProjectPath)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s, run create before trying to deploy", ErrProjectMissing, cfg.ProjectName)
	}

	results, err := d.Syncer.SyncAll(ctx)
	if err != nil {
		return err
	}
	record := &types.Record{
		Project:    cfg.ProjectName,
		Host:       d.Host,
		DeployTool: cfg.DeployTool,
		Backup:     backup,
	}
	for _, res := range results {
		if res.Changed {
			record.TemplatesChanged = append(record.TemplatesChanged, res.Name)
		}
	}

	if backup {
		if err := d.backup(ctx); err != nil {
			return err
		}
	}

	record.RequirementsReinstalled, err = requirements.WithChangeDetection(ctx, d.Remote, d.manifestPath(), d.pushCode, d.reinstall)
	if err != nil {
		return err
	}

	steps := []func() (string, error){
		func() (string, error) { return d.Manage(ctx, "collectstatic -v 0 --noinput") },
		func() (string, error) { return d.Manage(ctx, "syncdb --noinput") },
		func() (string, error) { return d.Manage(ctx, "migrate --noinput") },
	}
	if err := runSteps(steps); err != nil {
		return err
	}
	if first {
		if _, err := d.Remote.Run(ctx, "supervisorctl update"); err != nil {
			return err
		}
	} else if err := d.Restart(ctx); err != nil {
		return err
	}

	if commit, err := d.Local.Output(ctx, "git", "rev-parse", "HEAD"); err == nil {
		record.Commit = commit
	}
	d.record(ctx, record)
	return nil
}

// Rollback reverts the project to the state saved by the last deploy run with backup:
// the checked out commit, the static files and the database.
func (d *Deployer) Rollback(ctx context.Context) error {
	d.observe("rollback")

	if d.Config.DeployTool == "git" {
		checkout := func(ctx context.Context) error {
			_, err := d.Remote.Run(ctx, fmt.Sprintf("git checkout -f `cat %s`", lastCommit), remote.WithScope(d.repository()))
			return err
		}
		if _, err := requirements.WithChangeDetection(ctx, d.Remote, d.manifestPath(), checkout, d.reinstall); err != nil {
			return err
		}
	} else {
		klog.Warningf("deploy_tool is %s, code is not rolled back", d.Config.DeployTool)
	}

	static, err := d.Static(ctx)
	if err != nil {
		return err
	}
	parent := remote.WithScope(remote.Scope{Dir: path.Dir(static)})
	if _, err := d.Remote.Run(ctx, "tar -xf "+d.projectFile(lastTar), parent); err != nil {
		return err
	}
	if _, err := d.Restore(ctx, d.projectFile(lastDB)); err != nil {
		return err
	}
	return d.Restart(ctx)
}

// All creates the project on a prepared server and runs its first deploy.
func (d *Deployer) All(ctx context.Context) error {
	d.observe("all")
	if err := d.Create(ctx); err != nil {
		return err
	}
	return d.Deploy(ctx, true, false)
}

func (d *Deployer) backup(ctx context.Context) error {
	if d.Config.DeployTool == "git" {
		if _, err := d.Remote.Run(ctx, "git rev-parse HEAD > "+lastCommit, remote.WithScope(d.repository())); err != nil {
			return err
		}
	}
	if _, err := d.Backup(ctx, d.projectFile(lastDB)); err != nil {
		return err
	}
	static, err := d.Static(ctx)
	if err != nil {
		return err
	}
	exists, err := d.Remote.Exists(ctx, static)
	if err != nil || !exists {
		return err
	}
	_, err = d.Remote.Run(ctx, fmt.Sprintf("tar -cf %s -C %s %s", d.projectFile(lastTar), path.Dir(static), path.Base(static)))
	return err
}

func (d *Deployer) pushCode(ctx context.Context) error {
	if d.Config.DeployTool == "git" {
		return d.Local.Run(ctx, "git", "push", "production", "master")
	}
	return d.rsync(ctx)
}

func (d *Deployer) reinstall(ctx context.Context) error {
	_, err := d.Pip(ctx, "-r "+d.manifestPath())
	return err
}

func (d *Deployer) rsync(ctx context.Context) error {
	cfg := d.Config
	rsh := []string{"ssh", "-p", strconv.Itoa(cfg.Port)}
	if cfg.KeyPath != "" {
		rsh = append(rsh, "-i", cfg.KeyPath)
	}
	args := []string{"-pthrvz", "--rsh=" + shellquote.Join(rsh...), "--exclude=.git"}
	if _, err := os.Stat(".gitignore"); err == nil {
		args = append(args, "--exclude-from=.gitignore")
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	args = append(args, cwd+string(os.PathSeparator), fmt.Sprintf("%s@%s:%s", cfg.User, d.Host, cfg.ProjectPath))
	return d.Local.Run(ctx, "rsync", args...)
}

// record stores the deploy in the state backend. A failure is reported but does not fail
// the deploy that already happened.
func (d *Deployer) record(ctx context.Context, record *types.Record) {
	if d.Backend == nil {
		return
	}
	record.DeployedAt = d.Now().UTC()
	if err := d.Backend.PreCmd(ctx, record.Project); err != nil {
		klog.Warningf("unable to prepare state backend: %v", err)
		return
	}
	if err := d.Backend.Write(ctx, record); err != nil {
		klog.Warningf("unable to record deploy of %s to %s: %v", record.Project, record.Host, err)
	}
}

func runSteps(steps []func() (string, error)) error {
	for _, step := range steps {
		if _, err := step(); err != nil {
			return err
		}
	}
	return nil
}
