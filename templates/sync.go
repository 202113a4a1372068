package templates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/sergi/go-diff/diffmatchpatch"
	"k8s.io/klog/v2"

	"deploykit/config"
	"deploykit/remote"
)

//go:generate mockgen -source=sync.go -destination=mock/mock_remote.go -package=mock

// ErrUnknownTemplate is returned for names outside the active template set.
var ErrUnknownTemplate = errors.New("unknown template")

const dbPassPlaceholder = "%(db_pass)s"

// Remote is the part of the remote executor the sync engine needs.
type Remote interface {
	Exists(ctx context.Context, path string) (bool, error)
	ReadFile(ctx context.Context, path string) (string, error)
	Upload(ctx context.Context, content []byte, path string) error
	Sudo(ctx context.Context, command string, opts ...remote.Option) (string, error)
}

// Result describes the outcome of syncing one template.
type Result struct {
	Name       string
	RemotePath string
	Changed    bool
}

// Syncer uploads templates whose rendered content differs from what is on the server and
// reloads the related service.
type Syncer struct {
	Config *config.Config
	Remote Remote
	Prompt config.PasswordPrompter
	// Out receives the diff shown before a changed template is uploaded.
	Out io.Writer
	// Sources are searched in order for relative template paths.
	Sources []fs.FS

	templates map[string]Spec
}

// NewSyncer builds the active template set for cfg. Relative template paths are resolved
// against the working directory first and the settings directory second.
func NewSyncer(cfg *config.Config, r Remote, prompt config.PasswordPrompter, out io.Writer) (*Syncer, error) {
	active, err := BuildActive(cfg)
	if err != nil {
		return nil, err
	}
	sources := []fs.FS{os.DirFS(".")}
	if cfg.BaseDir != "" {
		sources = append(sources, os.DirFS(cfg.BaseDir))
	}
	return &Syncer{
		Config:    cfg,
		Remote:    r,
		Prompt:    prompt,
		Out:       out,
		Sources:   sources,
		templates: active,
	}, nil
}

// Templates returns the active templates ordered by name.
func (s *Syncer) Templates() []Spec {
	return Sorted(s.templates)
}

// Get returns the active template called name.
func (s *Syncer) Get(name string) (Spec, bool) {
	spec, ok := s.templates[name]
	return spec, ok
}

// Sync brings the remote copy of template name in line with its rendered local source.
// When both are equal after normalization nothing is uploaded, chowned, chmoded or
// reloaded. Otherwise the rendered content replaces the remote file, then the owner,
// mode and reload command are applied in that order. A failure after the upload leaves
// the new content in place.
func (s *Syncer) Sync(ctx context.Context, name string) (Result, error) {
	spec, ok := s.templates[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	result := Result{Name: name, RemotePath: spec.RemotePath}

	rendered, err := s.renderFile(spec.LocalPath)
	if err != nil {
		return result, fmt.Errorf("template %s: %w", name, err)
	}

	current := ""
	exists, err := s.Remote.Exists(ctx, spec.RemotePath)
	if err != nil {
		return result, err
	}
	if exists {
		current, err = s.Remote.ReadFile(ctx, spec.RemotePath)
		if err != nil {
			return result, err
		}
	}

	if Normalize(current) == Normalize(rendered) {
		klog.V(2).Infof("[sync] %s is up to date at %s", name, spec.RemotePath)
		return result, nil
	}
	if exists {
		s.printDiff(current, rendered)
	}

	if err := s.Remote.Upload(ctx, []byte(rendered), spec.RemotePath); err != nil {
		return result, err
	}
	result.Changed = true
	klog.Infof("Uploaded template %s to %s", name, spec.RemotePath)

	path := shellquote.Join(spec.RemotePath)
	if spec.Owner != "" {
		if _, err := s.Remote.Sudo(ctx, fmt.Sprintf("chown %s %s", spec.Owner, path)); err != nil {
			return result, err
		}
	}
	if spec.Mode != "" {
		if _, err := s.Remote.Sudo(ctx, fmt.Sprintf("chmod %s %s", spec.Mode, path)); err != nil {
			return result, err
		}
	}
	if spec.ReloadCommand != "" {
		if _, err := s.Remote.Sudo(ctx, spec.ReloadCommand); err != nil {
			return result, err
		}
	}
	return result, nil
}

// SyncAll syncs every active template in name order and stops at the first failure.
func (s *Syncer) SyncAll(ctx context.Context) ([]Result, error) {
	var results []Result
	for _, spec := range s.Templates() {
		res, err := s.Sync(ctx, spec.Name)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Put renders the template at localPath and uploads it to remotePath unconditionally.
func (s *Syncer) Put(ctx context.Context, localPath, remotePath string) error {
	rendered, err := s.renderFile(localPath)
	if err != nil {
		return fmt.Errorf("template %s: %w", localPath, err)
	}
	return s.Remote.Upload(ctx, []byte(rendered), remotePath)
}

func (s *Syncer) renderFile(localPath string) (string, error) {
	raw, err := s.readLocal(localPath)
	if err != nil {
		return "", err
	}
	body := Escape(string(raw))
	values := s.Config.Values()
	if strings.Contains(body, dbPassPlaceholder) {
		pw, err := s.Config.DBPass(s.Prompt)
		if err != nil {
			return "", err
		}
		values["db_pass"] = pw
	}
	return Expand(body, values)
}

func (s *Syncer) readLocal(localPath string) ([]byte, error) {
	if filepath.IsAbs(localPath) {
		return os.ReadFile(localPath)
	}
	name := filepath.ToSlash(filepath.Clean(localPath))
	for _, src := range s.Sources {
		data, err := fs.ReadFile(src, name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading file: %s", err)
		}
	}
	return nil, fmt.Errorf("local template %s not found: %w", localPath, fs.ErrNotExist)
}

func (s *Syncer) printDiff(current, rendered string) {
	if s.Out == nil {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(s.mask(current), s.mask(rendered), false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	fmt.Fprintln(s.Out, dmp.DiffPrettyText(diffs))
}

// mask hides secrets so they never reach the terminal through a diff.
func (s *Syncer) mask(content string) string {
	values := s.Config.Values()
	for _, key := range []string{"db_pass", "admin_pass", "secret_key", "nevercache_key"} {
		if v := values[key]; len(v) > 0 {
			content = strings.ReplaceAll(content, v, strings.Repeat("*", len(v)))
		}
	}
	return content
}
