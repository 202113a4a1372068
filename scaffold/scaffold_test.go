package scaffold

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"

	"deploykit/config"
	"deploykit/templates"
)

func TestInit(t *testing.T) {
	type test struct {
		name        string
		existing    map[string]string
		wantCreated []string
		wantSkipped []string
	}
	tests := []test{
		{
			name: "empty project",
			wantCreated: []string{
				"deploy.yaml",
				"deploy/crontab",
				"deploy/gunicorn.conf.py.template",
				"deploy/local_settings.py.template",
				"deploy/nginx.conf",
				"deploy/post-receive",
				"deploy/supervisorctl.conf",
				"deploy/supervisord.conf",
			},
		},
		{
			name: "existing files are kept",
			existing: map[string]string{
				"deploy.yaml":       "hosts: 10.0.0.1\n",
				"deploy/nginx.conf": "# mine\n",
			},
			wantCreated: []string{
				"deploy/crontab",
				"deploy/gunicorn.conf.py.template",
				"deploy/local_settings.py.template",
				"deploy/post-receive",
				"deploy/supervisorctl.conf",
				"deploy/supervisord.conf",
			},
			wantSkipped: []string{"deploy.yaml", "deploy/nginx.conf"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tc.existing {
				path := filepath.Join(dir, name)
				assert.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
				assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			}

			results, err := Init(dir)
			assert.NoError(t, err)

			var created, skipped []string
			for _, res := range results {
				rel, err := filepath.Rel(dir, res.Path)
				assert.NoError(t, err)
				if res.Created {
					created = append(created, filepath.ToSlash(rel))
				} else {
					skipped = append(skipped, filepath.ToSlash(rel))
				}
			}
			assert.ElementsMatch(t, tc.wantCreated, created)
			assert.ElementsMatch(t, tc.wantSkipped, skipped)

			for name, content := range tc.existing {
				got, err := os.ReadFile(filepath.Join(dir, name))
				assert.NoError(t, err)
				assert.Equal(t, content, string(got))
			}
		})
	}
}

func TestInit_Twice(t *testing.T) {
	dir := t.TempDir()
	_, err := Init(dir)
	assert.NoError(t, err)
	results, err := Init(dir)
	assert.NoError(t, err)
	for _, res := range results {
		assert.False(t, res.Created, "expected %s to be skipped", res.Path)
	}
}

func TestInit_Modes(t *testing.T) {
	dir := t.TempDir()
	_, err := initFS(fstest.MapFS{
		"deploy/post-receive": {Data: []byte("#!/bin/bash\n")},
		"deploy/crontab":      {Data: []byte("* * * * * true\n")},
	}, dir)
	assert.NoError(t, err)

	hook, err := os.Stat(filepath.Join(dir, "deploy", "post-receive"))
	assert.NoError(t, err)
	assert.NotZero(t, hook.Mode().Perm()&0o100, "expected post-receive to be executable")
	cron, err := os.Stat(filepath.Join(dir, "deploy", "crontab"))
	assert.NoError(t, err)
	assert.Zero(t, cron.Mode().Perm()&0o111, "expected crontab not to be executable")
}

// The embedded templates have to render against every built-in template entry.
func TestFiles_Render(t *testing.T) {
	cfg, err := config.Resolve(config.Settings{
		SSHUser:     "deploy",
		Hosts:       config.StringList{"10.0.0.1"},
		ProjectName: "myproj",
		DeployTool:  "git",
		DBPass:      "secret",
	}, t.TempDir())
	assert.NoError(t, err)
	active, err := templates.BuildActive(cfg)
	assert.NoError(t, err)
	values := cfg.Values()

	local := []string{"deploy/supervisord.conf"}
	for _, spec := range active {
		local = append(local, spec.LocalPath)
	}
	for _, name := range local {
		raw, err := fs.ReadFile(Files(), name)
		if !assert.NoError(t, err, "missing embedded template %s", name) {
			continue
		}
		_, err = templates.Render(string(raw), values)
		assert.NoError(t, err, "template %s does not render", name)
	}
}

func TestFiles_Settings(t *testing.T) {
	raw, err := fs.ReadFile(Files(), "deploy.yaml")
	assert.NoError(t, err)
	t.Setenv("DEPLOY_DB_PASS", "from-env")
	cfg, err := config.Parse(context.Background(), raw, t.TempDir())
	assert.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.10"}, cfg.Hosts)
	assert.Equal(t, []string{"www.example.com"}, cfg.Domains)
	db, err := cfg.DBPass(nil)
	assert.NoError(t, err)
	assert.Equal(t, "from-env", db)
}
