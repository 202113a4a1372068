// Package requirements decides whether a project's Python dependencies need to be
// reinstalled after its code has been updated.
package requirements

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/klog/v2"
)

//go:generate mockgen -source=requirements.go -destination=mock/mock_reader.go -package=mock

// Reader reads a file on the remote host.
type Reader interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

// operators are the version comparison operators of a requirement specifier, longest first.
var operators = []string{"===", "==", "~=", "!=", "<=", ">=", "<", ">"}

// WithChangeDetection snapshots the manifest at manifestPath, runs action and calls
// reinstall unless the manifest is unchanged and fully pinned. When there was no manifest
// before the action (empty path or unreadable file) nothing is reinstalled. It reports
// whether reinstall was called.
func WithChangeDetection(ctx context.Context, r Reader, manifestPath string, action, reinstall func(context.Context) error) (bool, error) {
	before := ""
	if manifestPath != "" {
		content, err := r.ReadFile(ctx, manifestPath)
		if err != nil {
			klog.V(2).Infof("[requirements] no manifest at %s before update: %v", manifestPath, err)
		} else {
			before = content
		}
	}

	if err := action(ctx); err != nil {
		return false, err
	}
	if before == "" {
		return false, nil
	}

	after, err := r.ReadFile(ctx, manifestPath)
	if err != nil {
		return false, fmt.Errorf("unable to read %s after update: %w", manifestPath, err)
	}
	if after == before {
		unpinned := Unpinned(after)
		if len(unpinned) == 0 {
			klog.V(2).Infof("[requirements] %s is unchanged and pinned, skipping reinstall", manifestPath)
			return false, nil
		}
		klog.Infof("Requirements unchanged but not pinned: %s", strings.Join(unpinned, ", "))
	} else {
		klog.Infof("Requirements changed in %s", manifestPath)
	}

	return true, reinstall(ctx)
}

// Unpinned returns the lines of manifest that do not pin a version.
func Unpinned(manifest string) []string {
	var out []string
	for _, line := range strings.Split(manifest, "\n") {
		if !Pinned(line) {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

// Pinned reports whether line is acceptable in a fully pinned manifest: blank, a
// comment, an editable requirement with an @ref, or a requirement constrained by a
// version operator. Inline comments and environment markers never count as a
// constraint.
func Pinned(line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "", strings.HasPrefix(line, "#"):
		return true
	case strings.HasPrefix(line, "-e"), strings.HasPrefix(line, "--editable"):
		return strings.Contains(stripComment(line), "@")
	case strings.HasPrefix(line, "-"):
		return false
	}
	spec := stripMarker(stripComment(line))
	for _, op := range operators {
		if strings.Contains(spec, op) {
			return true
		}
	}
	return false
}

func stripComment(line string) string {
	if i := strings.Index(line, " #"); i >= 0 {
		return line[:i]
	}
	return line
}

// stripMarker drops an environment marker such as `; python_version<"3"`.
func stripMarker(line string) string {
	if i := strings.Index(line, ";"); i >= 0 {
		return line[:i]
	}
	return line
}
