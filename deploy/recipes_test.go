package deploy

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
	"k8s.io/utils/ptr"

	"deploykit/config"
	"deploykit/deploy/mock"
	"deploykit/prompt"
	backendmock "deploykit/providers/backend/mock"
	"deploykit/templates"
	"deploykit/types"
)

const staticCode = "from django.conf import settings;print(settings.STATIC_ROOT)"

var (
	staticCommand = "python -c " + shellquote.Join(djangoSetup+staticCode)
	deployedAt    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func TestInstall(t *testing.T) {
	type test struct {
		name      string
		locale    string
		wantCalls []string
	}
	tail := []string{
		"sudo apt-get update -y -q >> /dev/null",
		"sudo apt-get install -y -q " + basePackages,
		"sudo pip install virtualenv virtualenvwrapper",
		"run mkdir -p /home/deploy/{tmp,logs,etc}",
		"run mkdir -p /home/deploy/etc/supervisor/conf.d",
		"sudo chown deploy /home/deploy/etc/supervisord.conf",
		"run supervisord -c /home/deploy/etc/supervisord.conf",
		"run mkdir -p /home/deploy/.virtualenvs",
		"run echo 'export WORKON_HOME=/home/deploy/.virtualenvs' >> /home/deploy/.bashrc",
		"run echo 'source /usr/local/bin/virtualenvwrapper.sh' >> /home/deploy/.bashrc",
	}
	tests := []test{
		{
			name:      "locale already set",
			locale:    "LANG=C\nLC_ALL=en_US.UTF-8",
			wantCalls: append([]string{"sudo cat /etc/default/locale"}, tail...),
		},
		{
			name:   "locale updated",
			locale: "LANG=C",
			wantCalls: append([]string{
				"sudo cat /etc/default/locale",
				"sudo update-locale LC_ALL=en_US.UTF-8",
			}, tail...),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := gomock.NewController(t)
			syncer := mock.NewMockSyncer(ctrl)
			syncer.EXPECT().Put(ctx, "deploy/supervisord.conf", "/home/deploy/etc/supervisord.conf").Return(nil)

			r := newFakeRemote()
			r.outputs["cat /etc/default/locale"] = tc.locale
			var observed []string
			d, out := newTestDeployer(t, testConfig(t, config.Settings{}), r, &observed)
			d.Syncer = syncer

			assert.NoError(t, d.Install(ctx))
			assert.Equal(t, tc.wantCalls, r.calls)
			assert.Equal(t, []string{"install"}, observed)
			assert.Contains(t, out.String(), "Successfully set up git, pip, virtualenv, supervisor, and memcached.")
		})
	}
}

func TestCreate(t *testing.T) {
	type test struct {
		name        string
		settings    config.Settings
		exists      map[string]bool
		answers     []bool
		mockFn      func(ctx context.Context, syncer *mock.MockSyncer, local *mock.MockLocal)
		wantCalls   []string
		wantAsked   []string
		wantEcho    []string
		wantNotEcho []string
		wantErr     string
		wantErrorIs error
	}
	psqlUser := "sudo(postgres)[quiet] psql -c " +
		shellquote.Join("CREATE USER myproj WITH ENCRYPTED PASSWORD 'pa''ss';")
	psqlDB := "sudo(postgres)[quiet] psql -c " + shellquote.Join("CREATE DATABASE myproj WITH OWNER myproj "+
		"ENCODING = 'UTF8' LC_CTYPE = 'en_US.UTF-8' LC_COLLATE = 'en_US.UTF-8' TEMPLATE template0;")
	siteUpdate := "run[quiet] " + projectScope + "python -c " + shellquote.Join(djangoSetup+
		"from django.conf import settings;from django.contrib.sites.models import Site;"+
		"Site.objects.filter(id=settings.SITE_ID).update(domain='10.0.0.1');")
	siteCreate := func(domain string) string {
		return "run[quiet] " + projectScope + "python -c " + shellquote.Join(djangoSetup+
			"from django.contrib.sites.models import Site;"+
			"Site.objects.get_or_create(domain='"+domain+"');")
	}
	setup := []string{
		psqlUser,
		psqlDB,
		"run " + venvScope + "pip install -r " + manifest,
		"run " + venvScope + "pip install " + projectPackages,
		"run " + manage + " createdb --noinput --nodata",
		siteUpdate,
	}
	tests := []test{
		{
			name:     "new virtualenv with rsync",
			settings: config.Settings{DBPass: "pa'ss"},
			answers:  []bool{true},
			mockFn: func(ctx context.Context, syncer *mock.MockSyncer, local *mock.MockLocal) {
				local.EXPECT().Run(ctx, "rsync", gomock.Any()).Return(nil)
				syncer.EXPECT().Sync(ctx, "settings").Return(templates.Result{Name: "settings", Changed: true}, nil)
			},
			wantCalls: append(append([]string{
				"run mkdir -p " + projPath,
				"run mkdir -p /home/deploy/.virtualenvs",
				"exists " + venvPath,
				"run cd /home/deploy/.virtualenvs && virtualenv myproj",
				"run cd /home/deploy/.virtualenvs && touch myproj/lib/python2.7/sitecustomize.py",
			}, setup...), siteCreate("10.0.0.1")),
			wantAsked: []string{"Virtualenv does not exist: myproj. Create?"},
			wantEcho: []string{
				"CREATE USER myproj WITH ENCRYPTED PASSWORD '******';",
				"TEMPLATE template0;",
				"Site.objects.get_or_create(domain='10.0.0.1');",
				"New virtualenv: " + venvPath + ".",
				"All files pushed to remote server.",
			},
			wantNotEcho: []string{"pa''ss"},
		},
		{
			name: "existing virtualenv with git and admin user",
			settings: config.Settings{
				DBPass:     "pa'ss",
				AdminPass:  "adm'n",
				DeployTool: "git",
				Domains:    config.StringList{"10.0.0.1", "example.com"},
			},
			exists:  map[string]bool{venvPath: true},
			answers: []bool{false},
			mockFn: func(ctx context.Context, syncer *mock.MockSyncer, local *mock.MockLocal) {
				syncer.EXPECT().Sync(ctx, "post receive hook").Return(templates.Result{Name: "post receive hook"}, nil)
				gomock.InOrder(
					local.EXPECT().Run(ctx, "git", "remote", "add", "production",
						"ssh://deploy@10.0.0.1/home/deploy/git/myproj.git").Return(nil),
					local.EXPECT().Run(ctx, "git", "push", "production", "+master:refs/heads/master").Return(nil),
				)
				syncer.EXPECT().Sync(ctx, "settings").Return(templates.Result{Name: "settings"}, nil)
			},
			wantCalls: append(append([]string{
				"run mkdir -p " + projPath,
				"run mkdir -p /home/deploy/.virtualenvs",
				"exists " + venvPath,
				"run cd /home/deploy/.virtualenvs && touch myproj/lib/python2.7/sitecustomize.py",
				"exists /home/deploy/git/myproj.git",
				"run mkdir -p /home/deploy/git/myproj.git",
				"run cd /home/deploy/git/myproj.git && git init --bare",
			}, setup...),
				siteCreate("10.0.0.1"),
				siteCreate("example.com"),
				"run[quiet] "+projectScope+"python -c "+shellquote.Join(djangoSetup+
					"from mezzanine.utils.models import get_user_model;User = get_user_model();"+
					"u, _ = User.objects.get_or_create(username='admin');u.is_staff = u.is_superuser = True;"+
					`u.set_password('adm\'n');u.save();`),
			),
			wantAsked: []string{"Virtualenv already exists: myproj. Reinstall?"},
			wantEcho: []string{
				"Using existing virtualenv: myproj.",
				"Git repo ready at /home/deploy/git/myproj.git",
				"u.set_password('******');",
			},
			wantNotEcho: []string{`adm\'n`},
		},
		{
			name:     "virtualenv creation declined",
			settings: config.Settings{DBPass: "pa'ss"},
			answers:  []bool{false},
			wantCalls: []string{
				"run mkdir -p " + projPath,
				"run mkdir -p /home/deploy/.virtualenvs",
				"exists " + venvPath,
			},
			wantAsked:   []string{"Virtualenv does not exist: myproj. Create?"},
			wantErr:     "aborted at user request",
			wantErrorIs: prompt.ErrAborted,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := gomock.NewController(t)
			syncer := mock.NewMockSyncer(ctrl)
			local := mock.NewMockLocal(ctrl)
			if tc.mockFn != nil {
				tc.mockFn(ctx, syncer, local)
			}

			r := newFakeRemote()
			for k, v := range tc.exists {
				r.exists[k] = v
			}
			p := &fakePrompt{answers: tc.answers}
			d, out := newTestDeployer(t, testConfig(t, tc.settings), r, nil)
			d.Syncer, d.Local, d.Prompt = syncer, local, p

			err := d.Create(ctx)
			if tc.wantErr != "" {
				assert.EqualErrorf(t, err, tc.wantErr, "expected error message: %s", tc.wantErr)
				assert.ErrorIs(t, err, tc.wantErrorIs)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, r.calls)
			assert.Equal(t, tc.wantAsked, p.asked)
			for _, echo := range tc.wantEcho {
				assert.Contains(t, out.String(), echo)
			}
			for _, secret := range tc.wantNotEcho {
				assert.NotContains(t, out.String(), secret)
			}
		})
	}
}

func TestRsync(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	local := mock.NewMockLocal(ctrl)
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("unable to get working directory: %v", err)
	}
	local.EXPECT().Run(ctx, "rsync", "-pthrvz", "--rsh=ssh -p 2222 -i '/keys/my key'", "--exclude=.git",
		cwd+"/", "deploy@10.0.0.1:"+projPath).Return(nil)

	d, _ := newTestDeployer(t, testConfig(t, config.Settings{SSHPort: 2222, SSHKeyPath: "/keys/my key"}), newFakeRemote(), nil)
	d.Local = local
	assert.NoError(t, d.rsync(ctx))
}

func TestDeploy(t *testing.T) {
	type test struct {
		name         string
		settings     config.Settings
		first        bool
		backup       bool
		exists       map[string]bool
		manifests    []string
		mockFn       func(ctx context.Context, syncer *mock.MockSyncer, local *mock.MockLocal, b *backendmock.MockProvider)
		wantCalls    []string
		wantObserved []string
		wantErr      string
	}
	tests := []test{
		{
			name:         "project missing",
			wantCalls:    []string{"exists " + projPath},
			wantObserved: []string{"deploy"},
			wantErr:      "project does not exist in host server: myproj, run create before trying to deploy",
		},
		{
			name:      "git with backup",
			settings:  config.Settings{DeployTool: "git"},
			backup:    true,
			exists:    map[string]bool{projPath: true, projPath + "/static": true},
			manifests: []string{"Django==1.8\n"},
			mockFn: func(ctx context.Context, syncer *mock.MockSyncer, local *mock.MockLocal, b *backendmock.MockProvider) {
				syncer.EXPECT().SyncAll(ctx).Return([]templates.Result{
					{Name: "cron", Changed: true},
					{Name: "nginx"},
					{Name: "settings", Changed: true},
				}, nil)
				local.EXPECT().Run(ctx, "git", "push", "production", "master").Return(nil)
				local.EXPECT().Output(ctx, "git", "rev-parse", "HEAD").Return("abc123", nil)
				gomock.InOrder(
					b.EXPECT().PreCmd(ctx, "myproj").Return(nil),
					b.EXPECT().Write(ctx, &types.Record{
						Project:          "myproj",
						Host:             "10.0.0.1",
						DeployedAt:       deployedAt,
						DeployTool:       "git",
						Commit:           "abc123",
						TemplatesChanged: []string{"cron", "settings"},
						Backup:           true,
					}).Return(nil),
				)
			},
			wantCalls: []string{
				"exists " + projPath,
				"run " + repoScope + "git rev-parse HEAD > last.commit",
				"sudo(postgres) pg_dump -Fc myproj > " + projPath + "/last.db",
				"run[quiet] " + projectScope + staticCommand,
				"exists " + projPath + "/static",
				"run tar -cf " + projPath + "/last.tar -C " + projPath + " static",
				"read " + manifest,
				"read " + manifest,
				"run " + manage + " collectstatic -v 0 --noinput",
				"run " + manage + " syncdb --noinput",
				"run " + manage + " migrate --noinput",
				"exists " + projPath + "/gunicorn.pid",
				"run supervisorctl restart gunicorn_myproj",
			},
			wantObserved: []string{"deploy", "restart"},
		},
		{
			name:      "first rsync deploy with changed requirements",
			first:     true,
			exists:    map[string]bool{projPath: true},
			manifests: []string{"Django==1.8\n", "Django==1.9\n"},
			mockFn: func(ctx context.Context, syncer *mock.MockSyncer, local *mock.MockLocal, b *backendmock.MockProvider) {
				syncer.EXPECT().SyncAll(ctx).Return([]templates.Result{{Name: "nginx"}}, nil)
				local.EXPECT().Run(ctx, "rsync", gomock.Any()).Return(nil)
				local.EXPECT().Output(ctx, "git", "rev-parse", "HEAD").Return("", errors.New("not a git repository"))
				b.EXPECT().PreCmd(ctx, "myproj").Return(nil)
				b.EXPECT().Write(ctx, &types.Record{
					Project:                 "myproj",
					Host:                    "10.0.0.1",
					DeployedAt:              deployedAt,
					DeployTool:              "rsync",
					RequirementsReinstalled: true,
				}).Return(nil)
			},
			wantCalls: []string{
				"exists " + projPath,
				"read " + manifest,
				"read " + manifest,
				"run " + venvScope + "pip install -r " + manifest,
				"run " + manage + " collectstatic -v 0 --noinput",
				"run " + manage + " syncdb --noinput",
				"run " + manage + " migrate --noinput",
				"run supervisorctl update",
			},
			wantObserved: []string{"deploy"},
		},
		{
			name:     "record failure does not fail the deploy",
			settings: config.Settings{RequirementsPath: ptr.To("")},
			exists:   map[string]bool{projPath: true, projPath + "/gunicorn.pid": true},
			mockFn: func(ctx context.Context, syncer *mock.MockSyncer, local *mock.MockLocal, b *backendmock.MockProvider) {
				syncer.EXPECT().SyncAll(ctx).Return(nil, nil)
				local.EXPECT().Run(ctx, "rsync", gomock.Any()).Return(nil)
				local.EXPECT().Output(ctx, "git", "rev-parse", "HEAD").Return("abc123", nil)
				b.EXPECT().PreCmd(ctx, "myproj").Return(errors.New("AWS_ACCESS_KEY_ID is not set"))
			},
			wantCalls: []string{
				"exists " + projPath,
				"run " + manage + " collectstatic -v 0 --noinput",
				"run " + manage + " syncdb --noinput",
				"run " + manage + " migrate --noinput",
				"exists " + projPath + "/gunicorn.pid",
				"run kill -HUP `cat " + projPath + "/gunicorn.pid`",
			},
			wantObserved: []string{"deploy", "restart"},
		},
		{
			name:   "template sync failure",
			exists: map[string]bool{projPath: true},
			mockFn: func(ctx context.Context, syncer *mock.MockSyncer, local *mock.MockLocal, b *backendmock.MockProvider) {
				syncer.EXPECT().SyncAll(ctx).Return(nil, errors.New("template nginx: upload failed"))
			},
			wantCalls:    []string{"exists " + projPath},
			wantObserved: []string{"deploy"},
			wantErr:      "template nginx: upload failed",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := gomock.NewController(t)
			syncer := mock.NewMockSyncer(ctrl)
			local := mock.NewMockLocal(ctrl)
			b := backendmock.NewMockProvider(ctrl)
			if tc.mockFn != nil {
				tc.mockFn(ctx, syncer, local, b)
			}

			r := newFakeRemote()
			for k, v := range tc.exists {
				r.exists[k] = v
			}
			if tc.manifests != nil {
				r.files[manifest] = tc.manifests
			}
			r.outputs[staticCommand] = projPath + "/static"
			var observed []string
			d, _ := newTestDeployer(t, testConfig(t, tc.settings), r, &observed)
			d.Syncer, d.Local, d.Backend = syncer, local, b
			d.Now = func() time.Time { return deployedAt }

			err := d.Deploy(ctx, tc.first, tc.backup)
			if tc.wantErr != "" {
				assert.EqualErrorf(t, err, tc.wantErr, "expected error message: %s", tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, r.calls)
			assert.Equal(t, tc.wantObserved, observed)
		})
	}
}

func TestDeploy_ProjectMissing(t *testing.T) {
	d, _ := newTestDeployer(t, testConfig(t, config.Settings{}), newFakeRemote(), nil)
	err := d.Deploy(context.Background(), false, false)
	assert.ErrorIs(t, err, ErrProjectMissing)
}

func TestRestart(t *testing.T) {
	type test struct {
		name      string
		exists    map[string]bool
		wantCalls []string
	}
	tests := []test{
		{
			name:   "running workers are reloaded",
			exists: map[string]bool{projPath + "/gunicorn.pid": true},
			wantCalls: []string{
				"exists " + projPath + "/gunicorn.pid",
				"run kill -HUP `cat " + projPath + "/gunicorn.pid`",
			},
		},
		{
			name: "stopped workers are started by supervisor",
			wantCalls: []string{
				"exists " + projPath + "/gunicorn.pid",
				"run supervisorctl restart gunicorn_myproj",
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newFakeRemote()
			r.exists = tc.exists
			var observed []string
			d, _ := newTestDeployer(t, testConfig(t, config.Settings{}), r, &observed)

			assert.NoError(t, d.Restart(context.Background()))
			assert.Equal(t, tc.wantCalls, r.calls)
			assert.Equal(t, []string{"restart"}, observed)
		})
	}
}

func TestRollback(t *testing.T) {
	type test struct {
		name      string
		settings  config.Settings
		manifests []string
		wantCalls []string
	}
	restore := []string{
		"run[quiet] " + projectScope + staticCommand,
		"run cd " + projPath + " && tar -xf " + projPath + "/last.tar",
		"sudo(postgres) pg_restore -c -d myproj " + projPath + "/last.db",
		"exists " + projPath + "/gunicorn.pid",
		"run supervisorctl restart gunicorn_myproj",
	}
	tests := []test{
		{
			name:      "git checks out the saved commit",
			settings:  config.Settings{DeployTool: "git"},
			manifests: []string{"Django==1.9\n", "Django==1.8\n"},
			wantCalls: append([]string{
				"read " + manifest,
				"run " + repoScope + "git checkout -f `cat last.commit`",
				"read " + manifest,
				"run " + venvScope + "pip install -r " + manifest,
			}, restore...),
		},
		{
			name:      "rsync keeps the code",
			manifests: []string{"Django==1.9\n"},
			wantCalls: restore,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newFakeRemote()
			r.files[manifest] = tc.manifests
			r.outputs[staticCommand] = projPath + "/static"
			var observed []string
			d, _ := newTestDeployer(t, testConfig(t, tc.settings), r, &observed)

			assert.NoError(t, d.Rollback(context.Background()))
			assert.Equal(t, tc.wantCalls, r.calls)
			assert.Equal(t, []string{"rollback", "restart"}, observed)
		})
	}
}

func TestRemove(t *testing.T) {
	type test struct {
		name      string
		settings  config.Settings
		venv      bool
		exists    map[string]bool
		mockFn    func(ctx context.Context, syncer *mock.MockSyncer, local *mock.MockLocal)
		wantCalls []string
	}
	specs := []templates.Spec{
		{Name: "cron", RemotePath: "/etc/cron.d/myproj"},
		{Name: "nginx", RemotePath: "/etc/nginx/sites-enabled/myproj.conf"},
	}
	database := []string{
		"sudo(postgres)[quiet] psql -c " + shellquote.Join("DROP DATABASE IF EXISTS myproj;"),
		"sudo(postgres)[quiet] psql -c " + shellquote.Join("DROP USER IF EXISTS myproj;"),
		"run supervisorctl update",
	}
	tests := []test{
		{
			name:   "with virtualenv",
			venv:   true,
			exists: map[string]bool{venvPath: true, "/etc/cron.d/myproj": true, projPath: true},
			mockFn: func(ctx context.Context, syncer *mock.MockSyncer, local *mock.MockLocal) {
				syncer.EXPECT().Templates().Return(specs)
			},
			wantCalls: append([]string{
				"exists " + venvPath,
				"run rm -rf " + venvPath,
				"exists /home/deploy/git/myproj.git",
				"exists /etc/cron.d/myproj",
				"sudo rm /etc/cron.d/myproj",
				"exists /etc/nginx/sites-enabled/myproj.conf",
				"exists " + projPath,
				"run rm -rf " + projPath,
			}, database...),
		},
		{
			name:     "git remote removal failure is ignored",
			settings: config.Settings{DeployTool: "git"},
			exists:   map[string]bool{"/home/deploy/git/myproj.git": true},
			mockFn: func(ctx context.Context, syncer *mock.MockSyncer, local *mock.MockLocal) {
				local.EXPECT().Output(ctx, "git", "remote", "rm", "production").Return("", errors.New("no such remote"))
				syncer.EXPECT().Templates().Return(nil)
			},
			wantCalls: append([]string{
				"exists /home/deploy/git/myproj.git",
				"run rm -rf /home/deploy/git/myproj.git",
				"exists " + projPath,
			}, database...),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := gomock.NewController(t)
			syncer := mock.NewMockSyncer(ctrl)
			local := mock.NewMockLocal(ctrl)
			tc.mockFn(ctx, syncer, local)

			r := newFakeRemote()
			r.exists = tc.exists
			var observed []string
			d, _ := newTestDeployer(t, testConfig(t, tc.settings), r, &observed)
			d.Syncer, d.Local = syncer, local

			assert.NoError(t, d.Remove(ctx, tc.venv))
			assert.Equal(t, tc.wantCalls, r.calls)
			assert.Equal(t, []string{"remove"}, observed)
		})
	}
}

func TestAll_CreateAborted(t *testing.T) {
	r := newFakeRemote()
	var observed []string
	d, _ := newTestDeployer(t, testConfig(t, config.Settings{DBPass: "secret"}), r, &observed)
	d.Prompt = &fakePrompt{answers: []bool{false}}

	err := d.All(context.Background())
	assert.ErrorIs(t, err, prompt.ErrAborted)
	assert.Equal(t, []string{"all", "create"}, observed)
}
