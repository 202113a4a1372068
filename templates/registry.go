package templates

import (
	"fmt"
	"sort"

	"deploykit/config"
)

// Spec is one resolved template: where it comes from, where it goes and what to do once
// it has changed.
type Spec struct {
	Name          string
	LocalPath     string
	RemotePath    string
	Owner         string
	Mode          string
	ReloadCommand string
}

type entry struct {
	spec Spec
	// renderIf is evaluated once while building the active set; entries failing it are
	// dropped.
	renderIf func(*config.Config) bool
}

func builtin() map[string]entry {
	return map[string]entry{
		"nginx": {spec: Spec{
			LocalPath:     "deploy/nginx.conf",
			RemotePath:    "/etc/nginx/sites-enabled/%(proj_name)s.conf",
			ReloadCommand: "service nginx restart",
		}},
		"gunicorn": {spec: Spec{
			LocalPath:  "deploy/gunicorn.conf.py.template",
			RemotePath: "%(proj_path)s/gunicorn.conf.py",
		}},
		"supervisorctl": {spec: Spec{
			LocalPath:     "deploy/supervisorctl.conf",
			RemotePath:    "%(supervisor_conf)s",
			ReloadCommand: "supervisorctl restart gunicorn_%(proj_name)s",
		}},
		"settings": {spec: Spec{
			LocalPath:  "deploy/local_settings.py.template",
			RemotePath: "%(proj_path)s/local_settings.py",
		}},
		"post receive hook": {
			spec: Spec{
				LocalPath:  "deploy/post-receive",
				RemotePath: "%(repo_path)s/hooks/post-receive",
				Mode:       "+x",
			},
			renderIf: func(c *config.Config) bool { return c.DeployTool == "git" },
		},
		"cron": {spec: Spec{
			LocalPath:  "deploy/crontab",
			RemotePath: "/etc/cron.d/%(proj_name)s",
			Owner:      "root",
			Mode:       "600",
		}},
	}
}

// BuildActive returns the templates that apply to cfg, keyed by name, with every
// placeholder in their fields resolved. Settings may add entries, override fields of
// built-in ones or disable them.
func BuildActive(cfg *config.Config) (map[string]Spec, error) {
	table := builtin()
	for name, o := range cfg.Templates {
		if o.Disabled {
			delete(table, name)
			continue
		}
		e := table[name]
		e.spec = override(e.spec, o)
		if e.spec.LocalPath == "" || e.spec.RemotePath == "" {
			return nil, fmt.Errorf("template %s: local_path and remote_path are required", name)
		}
		table[name] = e
	}

	values := cfg.Values()
	active := make(map[string]Spec, len(table))
	for name, e := range table {
		if e.renderIf != nil && !e.renderIf(cfg) {
			continue
		}
		spec, err := resolve(name, e.spec, values)
		if err != nil {
			return nil, err
		}
		active[name] = spec
	}
	return active, nil
}

func override(spec Spec, o config.TemplateOverride) Spec {
	if o.LocalPath != "" {
		spec.LocalPath = o.LocalPath
	}
	if o.RemotePath != "" {
		spec.RemotePath = o.RemotePath
	}
	if o.Owner != "" {
		spec.Owner = o.Owner
	}
	if o.Mode != "" {
		spec.Mode = o.Mode
	}
	if o.ReloadCommand != "" {
		spec.ReloadCommand = o.ReloadCommand
	}
	return spec
}

func resolve(name string, spec Spec, values map[string]string) (Spec, error) {
	fields := []*string{&spec.LocalPath, &spec.RemotePath, &spec.Owner, &spec.Mode, &spec.ReloadCommand}
	for _, f := range fields {
		expanded, err := Expand(*f, values)
		if err != nil {
			return Spec{}, fmt.Errorf("template %s: %w", name, err)
		}
		*f = expanded
	}
	spec.Name = name
	return spec, nil
}

// Sorted returns the specs ordered by name.
func Sorted(specs map[string]Spec) []Spec {
	out := make([]Spec, 0, len(specs))
	for _, s := range specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
