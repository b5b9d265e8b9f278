package blobStore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type LocalFS struct {
	Root string
}

func NewLocalFS(root string) (*LocalFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalFS{Root: root}, nil
}

func (l *LocalFS) abs(p string) string {
	return filepath.Join(l.Root, filepath.FromSlash(cleanPath(p)))
}

func (l *LocalFS) Put(ctx context.Context, p string, data []byte) error {
	abs := l.abs(p)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, data, 0o644)
}

func (l *LocalFS) Get(ctx context.Context, p string) ([]byte, error) {
	data, err := os.ReadFile(l.abs(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (l *LocalFS) Delete(ctx context.Context, p string) error {
	err := os.Remove(l.abs(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l *LocalFS) Exists(ctx context.Context, p string) (bool, error) {
	_, err := os.Stat(l.abs(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// List walks the directory holding prefix and returns matching logical paths, sorted.
func (l *LocalFS) List(ctx context.Context, prefix string) ([]string, error) {
	clean := cleanPrefix(prefix)
	dir := strings.TrimSuffix(clean, "/")
	if !strings.HasSuffix(clean, "/") {
		dir = filepath.ToSlash(filepath.Dir(clean))
	}
	start := filepath.Join(l.Root, filepath.FromSlash(dir))

	var out []string
	err := filepath.WalkDir(start, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.Root, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, clean) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
