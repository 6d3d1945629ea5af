// Package objectstore abstracts the key-addressed store that transformed
// records, registers, and replica sidecars live in. Keys use forward
// slashes regardless of the backing medium.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a key holds no object.
var ErrNotFound = errors.New("object not found")

// Store is a flat key-addressed object store.
type Store interface {
	// Get returns the object's bytes. A missing key reports ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes the object, replacing any existing one.
	Put(ctx context.Context, key string, data []byte) error
	// Exists reports whether the key holds an object.
	Exists(ctx context.Context, key string) (bool, error)
	// Copy duplicates the object at source to destination.
	Copy(ctx context.Context, source, destination string) error
	// List returns every key under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// FileStore keeps objects as files under a root directory, with key
// slashes becoming path separators.
type FileStore struct {
	root string
}

// NewFileStore opens a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FileStore{root: dir}, nil
}

// Root returns the directory the store writes under.
func (store *FileStore) Root() string { return store.root }

func (store *FileStore) objectPath(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty object key")
	}
	clean := path.Clean(key)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(store.root, filepath.FromSlash(clean)), nil
}

// Get implements Store.
func (store *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	objectPath, err := store.objectPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(objectPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// Put implements Store.
func (store *FileStore) Put(_ context.Context, key string, data []byte) error {
	objectPath, err := store.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(objectPath), 0755); err != nil {
		return fmt.Errorf("failed to create object directory for %s: %w", key, err)
	}
	if err := os.WriteFile(objectPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	return nil
}

// Exists implements Store.
func (store *FileStore) Exists(_ context.Context, key string) (bool, error) {
	objectPath, err := store.objectPath(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(objectPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

// Copy implements Store.
func (store *FileStore) Copy(ctx context.Context, source, destination string) error {
	data, err := store.Get(ctx, source)
	if err != nil {
		return err
	}
	return store.Put(ctx, destination, data)
}

// List implements Store.
func (store *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(store.root, func(walked string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		relative, err := filepath.Rel(store.root, walked)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relative)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, err)
	}
	return keys, nil
}
