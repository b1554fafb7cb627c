package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const dirMode = 0o755

// LocalStorage implements Storage on a directory tree of an afero filesystem.
// Spooled files must live on the same filesystem so Place is a rename.
type LocalStorage struct {
	fs   afero.Fs
	root string
}

// NewLocalStorage creates root and each of subdirs under it if absent.
func NewLocalStorage(afs afero.Fs, root string, subdirs ...string) (*LocalStorage, error) {
	for _, d := range append([]string{""}, subdirs...) {
		if err := afs.MkdirAll(filepath.Join(root, d), dirMode); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", filepath.Join(root, d), err)
		}
	}
	return &LocalStorage{fs: afs, root: root}, nil
}

func (s *LocalStorage) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Place renames tmpPath into the tree, deleting any file already at key first.
func (s *LocalStorage) Place(_ context.Context, key, tmpPath string) error {
	dst := s.path(key)
	exists, err := afero.Exists(s.fs, dst)
	if err != nil {
		return fmt.Errorf("stat %q: %w", dst, err)
	}
	if exists {
		if err := s.fs.Remove(dst); err != nil {
			return fmt.Errorf("remove existing %q: %w", dst, err)
		}
	}
	if err := s.fs.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("move %q to %q: %w", tmpPath, dst, err)
	}
	return nil
}

// Remove deletes the regular file at key.
func (s *LocalStorage) Remove(_ context.Context, key string) error {
	p := s.path(key)
	info, err := s.fs.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("stat %q: %w", p, err)
	}
	if info.IsDir() {
		return ErrNotFound
	}
	if err := s.fs.Remove(p); err != nil {
		return fmt.Errorf("remove %q: %w", p, err)
	}
	return nil
}

// Open returns the regular file at key. Directories are reported as not found.
func (s *LocalStorage) Open(_ context.Context, key string) (io.ReadSeekCloser, time.Time, error) {
	p := s.path(key)
	f, err := s.fs.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("open %q: %w", p, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, time.Time{}, fmt.Errorf("stat %q: %w", p, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, time.Time{}, ErrNotFound
	}
	return f, info.ModTime(), nil
}
