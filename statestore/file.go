package statestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/statecart/statecart/logger"
	"gopkg.in/yaml.v3"
)

const defaultWatchDebounce = 100 * time.Millisecond

// fileDocument is the on-disk layout of a File store.
type fileDocument struct {
	Carts map[string]fileRecord `yaml:"carts"`
}

type fileRecord struct {
	State     string    `yaml:"state"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// File keeps every cart's state in a single YAML document. Each Save
// rewrites the document through a temporary file and a rename, so readers
// never see a partial write.
type File struct {
	mu    sync.RWMutex
	path  string
	doc   fileDocument
	clock func() time.Time
}

// NewFile opens the store at path, loading the document if it exists.
func NewFile(path string) (*File, error) {
	f := &File{
		path:  path,
		doc:   fileDocument{Carts: make(map[string]fileRecord)},
		clock: time.Now,
	}

	if err := f.Reload(); err != nil {
		return nil, err
	}

	return f, nil
}

// Path returns the document path.
func (f *File) Path() string {
	return f.path
}

// Reload replaces the in-memory copy with the document on disk. A missing
// file counts as an empty document.
func (f *File) Reload() error {
	doc, err := readDocument(f.path)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.doc = doc

	return nil
}

func readDocument(path string) (fileDocument, error) {
	doc := fileDocument{Carts: make(map[string]fileRecord)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, nil
		}

		return doc, fmt.Errorf("reading state file: %w", err)
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parsing state file %s: %w", path, err)
	}

	if doc.Carts == nil {
		doc.Carts = make(map[string]fileRecord)
	}

	return doc, nil
}

func (f *File) Load(_ context.Context, id string) (string, bool, error) {
	if err := checkID(id); err != nil {
		return "", false, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	rec, ok := f.doc.Carts[id]

	return rec.State, ok, nil
}

func (f *File) Save(_ context.Context, id, state string) error {
	if err := checkID(id); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.doc.Carts[id]
	f.doc.Carts[id] = fileRecord{State: state, UpdatedAt: f.clock().UTC()}

	if err := f.write(); err != nil {
		if existed {
			f.doc.Carts[id] = prev
		} else {
			delete(f.doc.Carts, id)
		}

		return err
	}

	return nil
}

// write must be called with the lock held.
func (f *File) write() error {
	data, err := yaml.Marshal(&f.doc)
	if err != nil {
		return fmt.Errorf("encoding state file: %w", err)
	}

	dir := filepath.Dir(f.path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("writing state file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("writing state file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("writing state file: %w", err)
	}

	return nil
}

func (f *File) List(_ context.Context) (map[string]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]string, len(f.doc.Carts))
	for id, rec := range f.doc.Carts {
		out[id] = rec.State
	}

	return out, nil
}

func (f *File) Close() error {
	return nil
}

// Watch reloads the store whenever the document changes on disk, for
// example because another process saved a cart, and calls fn with the
// reloaded states. It blocks until ctx is done.
func (f *File) Watch(ctx context.Context, fn func(states map[string]string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Saves replace the file by renaming over it, so watch the directory.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watching %s: %w", f.path, err)
	}

	target := filepath.Clean(f.path)

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != target {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce.Reset(defaultWatchDebounce)
			}
		case <-debounce.C:
			if err := f.Reload(); err != nil {
				logger.Get(ctx).Warn("Failed to reload state file", "path", f.path, "error", err)

				continue
			}

			states, _ := f.List(ctx)
			fn(states)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Get(ctx).Warn("State file watch error", "path", f.path, "error", err)
		}
	}
}
