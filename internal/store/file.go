package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is a [Store] that keeps every document in one JSON object on disk.
// Each write rewrites the file through a temporary file and a rename.
type File struct {
	path string

	mu   sync.Mutex
	docs map[string]json.RawMessage
}

var _ Store = (*File)(nil)

// OpenFile loads path, creating its parent directory if needed. A missing
// file starts an empty store.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir for %s: %w", path, err)
	}
	f := &File{path: path, docs: make(map[string]json.RawMessage)}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.docs); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", path, err)
	}
	return f, nil
}

// Get implements [Store].
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.docs[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put implements [Store]. value must be valid JSON.
func (f *File) Put(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("store: put %q: value is not valid JSON", key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.docs[key]
	f.docs[key] = append(json.RawMessage(nil), value...)
	if err := f.flushLocked(); err != nil {
		if had {
			f.docs[key] = prev
		} else {
			delete(f.docs, key)
		}
		return err
	}
	return nil
}

// Delete implements [Store].
func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[key]; !ok {
		return nil
	}
	delete(f.docs, key)
	return f.flushLocked()
}

func (f *File) flushLocked() error {
	data, err := json.MarshalIndent(f.docs, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", f.path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: write %s: %w", f.path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: replace %s: %w", f.path, err)
	}
	return nil
}

// Ping checks that the directory holding the file is still accessible.
func (f *File) Ping(context.Context) error {
	if _, err := os.Stat(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close implements [Store].
func (f *File) Close() error { return nil }
