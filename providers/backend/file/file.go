package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"k8s.io/klog/v2"
	k8syaml "sigs.k8s.io/yaml"

	"deploykit/types"
)

const recordExt = ".yaml"

func NewBackend() *Backend {
	return &Backend{
		Name:     "file",
		BasePath: filepath.Join(configDir(), "deploykit", "state"),
	}
}

type Backend struct {
	Name     string
	BasePath string
}

func (b *Backend) PreCmd(_ context.Context, project string) error {
	path := filepath.Join(b.BasePath, project)
	klog.V(4).Infof("[file backend] trying to validate existing state dir: %s", path)
	_, err := os.Stat(path)
	if err != nil && os.IsNotExist(err) {
		// no base path, make it
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Read(_ context.Context, project, host string) (*types.Record, error) {
	file := b.recordPath(project, host)
	klog.V(4).Infof("[file backend] trying to read state file: %s", file)
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrNoRecord, file)
		}
		return nil, err
	}
	var record types.Record
	if err := k8syaml.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("couldn't parse state file %s: %v", file, err)
	}
	return &record, nil
}

func (b *Backend) Write(_ context.Context, record *types.Record) error {
	file := b.recordPath(record.Project, record.Host)
	klog.V(4).Infof("[file backend] trying to write state file: %s", file)
	y, err := k8syaml.Marshal(record)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	return os.WriteFile(file, y, 0o600)
}

func (b *Backend) Delete(_ context.Context, project string) error {
	path := filepath.Join(b.BasePath, project)
	klog.V(4).Infof("[file backend] trying to delete state files in: %s", path)
	return os.RemoveAll(path)
}

func (b *Backend) List(ctx context.Context, project string) ([]types.Record, error) {
	dir := filepath.Join(b.BasePath, project)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var records []types.Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}
		record, err := b.Read(ctx, project, strings.TrimSuffix(entry.Name(), recordExt))
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Host < records[j].Host })
	return records, nil
}

func (b *Backend) recordPath(project, host string) string {
	return filepath.Join(b.BasePath, project, host+recordExt)
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}
