package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strings"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

const (
	DefaultSettingsFile = "deploy.yaml"
	DefaultReqsPath     = "requirements/project.txt"
	DefaultLocale       = "en_US.UTF-8"
	DefaultDeployTool   = "rsync"
	DefaultSSHPort      = 22
)

// ErrNoHosts is returned when the settings resolve to an empty host list.
// There is nothing to deploy to, so callers abort before any remote action.
var ErrNoHosts = errors.New("no hosts defined")

// Settings is the raw content of the settings file.
type Settings struct {
	SSHUser               string                      `yaml:"ssh_user"`
	SSHPass               string                      `yaml:"ssh_pass"`
	SSHKeyPath            string                      `yaml:"ssh_key_path"`
	SSHPort               int                         `yaml:"ssh_port"`
	KnownHosts            string                      `yaml:"known_hosts"`
	InsecureIgnoreHostKey bool                        `yaml:"insecure_ignore_host_key"`
	Hosts                 StringList                  `yaml:"hosts"`
	Domains               StringList                  `yaml:"domains"`
	LiveHostname          string                      `yaml:"live_hostname"`
	ProjectName           string                      `yaml:"project_name"`
	VirtualenvHome        string                      `yaml:"virtualenv_home"`
	VirtualenvName        string                      `yaml:"virtualenv_name"`
	RequirementsPath      *string                     `yaml:"requirements_path"`
	DeployTool            string                      `yaml:"deploy_tool"`
	Locale                string                      `yaml:"locale"`
	DBPass                string                      `yaml:"db_pass"`
	AdminPass             string                      `yaml:"admin_pass"`
	SecretKey             string                      `yaml:"secret_key"`
	NevercacheKey         string                      `yaml:"nevercache_key"`
	StateBackend          string                      `yaml:"state_backend"`
	Templates             map[string]TemplateOverride `yaml:"templates"`
}

// TemplateOverride adds a template to the registry or replaces fields of a built-in one.
type TemplateOverride struct {
	LocalPath     string `yaml:"local_path"`
	RemotePath    string `yaml:"remote_path"`
	Owner         string `yaml:"owner"`
	Mode          string `yaml:"mode"`
	ReloadCommand string `yaml:"reload_command"`
	Disabled      bool   `yaml:"disabled"`
}

// Config is the resolved deployment configuration. It is built once by Load and is not
// modified afterwards; the database password is the only lazily resolved value and lives
// in its own single-assignment cell.
type Config struct {
	// User is the SSH user, also the owner of the project tree on the server.
	User                  string
	Password              string
	KeyPath               string
	Port                  int
	KnownHosts            string
	InsecureIgnoreHostKey bool

	Hosts   []string
	Domains []string

	ProjectName    string
	ProjectPath    string
	VenvHome       string
	VenvName       string
	VenvPath       string
	ReqsPath       string
	Manage         string
	DeployTool     string
	RepoPath       string
	Locale         string
	SupervisorConf string

	AdminPass     string
	SecretKey     string
	NevercacheKey string

	StateBackend string
	Templates    map[string]TemplateOverride

	// BaseDir is the directory holding the settings file. Template sources that do not
	// exist relative to the working directory are looked up here.
	BaseDir string

	dbPass *secret
}

// Load reads the settings file at path, expands ${VAR} references from the environment
// and resolves the configuration.
func Load(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		path = DefaultSettingsFile
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read settings file %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("[config] loaded settings from %s", abs)
	return Parse(ctx, raw, filepath.Dir(abs))
}

// Parse resolves a configuration from raw settings content.
func Parse(ctx context.Context, raw []byte, baseDir string) (*Config, error) {
	expanded, err := envsubst.EvalEnv(string(raw))
	if err != nil {
		return nil, fmt.Errorf("unable to expand settings: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal([]byte(expanded), &s); err != nil {
		return nil, fmt.Errorf("unable to parse settings: %w", err)
	}

	hosts, err := resolveHosts(ctx, s.Hosts)
	if err != nil {
		return nil, err
	}
	s.Hosts = hosts
	return Resolve(s, baseDir)
}

// Resolve applies the fallback rules to s. It fails with ErrNoHosts when s has no hosts.
// The returned Config shares no slices or maps with s.
func Resolve(s Settings, baseDir string) (*Config, error) {
	if len(s.Hosts) == 0 {
		return nil, ErrNoHosts
	}

	c := &Config{
		User:                  s.SSHUser,
		Password:              s.SSHPass,
		KeyPath:               s.SSHKeyPath,
		Port:                  s.SSHPort,
		KnownHosts:            s.KnownHosts,
		InsecureIgnoreHostKey: s.InsecureIgnoreHostKey,
		Hosts:                 slices.Clone(s.Hosts),
		Domains:               slices.Clone(s.Domains),
		ProjectName:           s.ProjectName,
		VenvHome:              s.VirtualenvHome,
		VenvName:              s.VirtualenvName,
		DeployTool:            s.DeployTool,
		Locale:                s.Locale,
		AdminPass:             s.AdminPass,
		SecretKey:             s.SecretKey,
		NevercacheKey:         s.NevercacheKey,
		StateBackend:          s.StateBackend,
		Templates:             maps.Clone(s.Templates),
		BaseDir:               baseDir,
		dbPass:                &secret{},
	}

	if c.User == "" {
		c.User = localUser()
	}
	if c.Port == 0 {
		c.Port = DefaultSSHPort
	}
	if c.KnownHosts == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.KnownHosts = filepath.Join(home, ".ssh", "known_hosts")
		}
	}
	if len(c.Domains) == 0 {
		if s.LiveHostname != "" {
			c.Domains = []string{s.LiveHostname}
		} else {
			c.Domains = []string{c.Hosts[0]}
		}
	}
	if c.ProjectName == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.ProjectName = filepath.Base(cwd)
		}
	}
	if c.VenvHome == "" {
		c.VenvHome = fmt.Sprintf("/home/%s/.virtualenvs", c.User)
	}
	if c.VenvName == "" {
		c.VenvName = c.ProjectName
	}
	c.ReqsPath = DefaultReqsPath
	if s.RequirementsPath != nil {
		c.ReqsPath = *s.RequirementsPath
	}
	if c.DeployTool == "" {
		c.DeployTool = DefaultDeployTool
	}
	if c.DeployTool != "rsync" && c.DeployTool != "git" {
		return nil, fmt.Errorf("unsupported deploy_tool %q, options are: rsync,git", c.DeployTool)
	}
	if c.Locale == "" {
		c.Locale = DefaultLocale
	}
	if c.StateBackend == "" {
		c.StateBackend = "file"
	}

	c.ProjectPath = fmt.Sprintf("/home/%s/mezzanine/%s", c.User, c.ProjectName)
	c.VenvPath = fmt.Sprintf("%s/%s", c.VenvHome, c.VenvName)
	c.Manage = fmt.Sprintf("%s/bin/python %s/manage.py", c.VenvPath, c.ProjectPath)
	c.RepoPath = fmt.Sprintf("/home/%s/git/%s.git", c.User, c.ProjectName)
	c.SupervisorConf = fmt.Sprintf("/home/%s/etc/supervisor/conf.d/%s.conf", c.User, c.ProjectName)

	if s.DBPass != "" {
		c.dbPass.set(s.DBPass)
	}
	return c, nil
}

// Values returns the flat placeholder mapping templates are rendered against.
// db_pass is only present once the database password has been resolved.
func (c *Config) Values() map[string]string {
	quoted := make([]string, len(c.Domains))
	for i, d := range c.Domains {
		quoted[i] = fmt.Sprintf("'%s'", d)
	}
	values := map[string]string{
		"user":            c.User,
		"proj_name":       c.ProjectName,
		"proj_path":       c.ProjectPath,
		"venv_home":       c.VenvHome,
		"venv_name":       c.VenvName,
		"venv_path":       c.VenvPath,
		"reqs_path":       c.ReqsPath,
		"manage":          c.Manage,
		"deploy_tool":     c.DeployTool,
		"repo_path":       c.RepoPath,
		"locale":          c.Locale,
		"supervisor_conf": c.SupervisorConf,
		"domains_nginx":   strings.Join(c.Domains, " "),
		"domains_regex":   strings.Join(c.Domains, "|"),
		"domains_python":  strings.Join(quoted, ", "),
		"admin_pass":      c.AdminPass,
		"secret_key":      c.SecretKey,
		"nevercache_key":  c.NevercacheKey,
		"ssl_disabled":    "#",
	}
	if pw, ok := c.dbPass.get(); ok {
		values["db_pass"] = pw
	}
	return values
}

func localUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
