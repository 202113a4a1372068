// Package scaffold writes the default deploy templates and settings into a project.
package scaffold

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

//go:embed files
var files embed.FS

// executables are written with the executable bit set.
var executables = map[string]bool{
	"deploy/post-receive": true,
}

// Result tells what Init did with one file.
type Result struct {
	Path    string
	Created bool
}

// Files returns the embedded project files, rooted like the project directory.
func Files() fs.FS {
	sub, err := fs.Sub(files, "files")
	if err != nil {
		panic(err)
	}
	return sub
}

// Init copies the embedded files into dir. Files that already exist are left untouched.
func Init(dir string) ([]Result, error) {
	return initFS(Files(), dir)
}

func initFS(src fs.FS, dir string) ([]Result, error) {
	var results []Result
	err := fs.WalkDir(src, ".", func(name string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		content, err := fs.ReadFile(src, name)
		if err != nil {
			return fmt.Errorf("error reading embedded file %s: %s", name, err)
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		created, err := writeNew(target, content, fileMode(name))
		if err != nil {
			return err
		}
		if created {
			klog.V(2).Infof("[scaffold] wrote %s", target)
		} else {
			klog.V(2).Infof("[scaffold] %s exists, skipping", target)
		}
		results = append(results, Result{Path: target, Created: created})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func fileMode(name string) os.FileMode {
	if executables[name] {
		return 0o755
	}
	return 0o644
}

// writeNew creates path with content and reports false, without error, when path exists.
func writeNew(path string, content []byte, mode os.FileMode) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("couldn't create directory for %s: %v", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("couldn't create %s: %v", path, err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("couldn't write %s: %v", path, err)
	}
	return true, f.Close()
}
