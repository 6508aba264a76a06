package memory

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// Workspace implements ports.Workspace over an in-memory file tree.
// Paths are cleaned before use; directories exist implicitly above every file.
type Workspace struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]struct{}
}

// NewWorkspace creates a workspace seeded with the given files (path -> content).
func NewWorkspace(seed map[string]string) *Workspace {
	w := &Workspace{
		files: make(map[string][]byte),
		dirs:  make(map[string]struct{}),
	}
	for p, content := range seed {
		w.put(filepath.Clean(p), []byte(content))
	}
	return w
}

// put must be called with mu held for writing (or during construction).
func (w *Workspace) put(path string, content []byte) {
	w.files[path] = bytes.Clone(content)
	w.mkdirs(filepath.Dir(path))
}

func (w *Workspace) mkdirs(dir string) {
	for {
		w.dirs[dir] = struct{}{}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func (w *Workspace) Read(ctx context.Context, path string) ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	data, ok := w.files[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrFileNotFound, path)
	}
	return bytes.Clone(data), nil
}

func (w *Workspace) Write(ctx context.Context, path string, content []byte) (domain.ContentHash, error) {
	clean := filepath.Clean(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, isDir := w.dirs[clean]; isDir {
		return "", fmt.Errorf("%w: %s is a directory", ports.ErrIO, path)
	}
	w.put(clean, content)
	return domain.HashBytes(content), nil
}

func (w *Workspace) ListDir(ctx context.Context, path string) ([]string, error) {
	dir := filepath.Clean(path)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if _, ok := w.dirs[dir]; !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrFileNotFound, path)
	}

	seen := make(map[string]struct{})
	collect := func(p string) {
		if p != dir && filepath.Dir(p) == dir {
			seen[filepath.Base(p)] = struct{}{}
		}
	}
	for p := range w.files {
		collect(p)
	}
	for p := range w.dirs {
		collect(p)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (w *Workspace) Exists(ctx context.Context, path string) (bool, error) {
	clean := filepath.Clean(path)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if _, ok := w.files[clean]; ok {
		return true, nil
	}
	_, ok := w.dirs[clean]
	return ok, nil
}

func (w *Workspace) Hash(ctx context.Context, path string) (domain.ContentHash, error) {
	data, err := w.Read(ctx, path)
	if err != nil {
		return "", err
	}
	return domain.HashBytes(data), nil
}

func (w *Workspace) CreateDirAll(ctx context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mkdirs(filepath.Clean(path))
	return nil
}

func (w *Workspace) Delete(ctx context.Context, path string) error {
	clean := filepath.Clean(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[clean]; ok {
		delete(w.files, clean)
		return nil
	}
	if _, ok := w.dirs[clean]; !ok {
		return fmt.Errorf("%w: %s", ports.ErrFileNotFound, path)
	}

	prefix := clean + string(filepath.Separator)
	for p := range w.files {
		if strings.HasPrefix(p, prefix) {
			return fmt.Errorf("%w: directory %s is not empty", ports.ErrIO, path)
		}
	}
	for p := range w.dirs {
		if strings.HasPrefix(p, prefix) {
			return fmt.Errorf("%w: directory %s is not empty", ports.ErrIO, path)
		}
	}
	delete(w.dirs, clean)
	return nil
}

func (w *Workspace) ScaffoldDeliverable(ctx context.Context, path string) error {
	dir := filepath.Clean(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.mkdirs(dir)
	for _, dt := range domain.ScaffoldDocumentTypes() {
		p := filepath.Join(dir, dt.Filename())
		if _, ok := w.files[p]; !ok {
			w.put(p, nil)
		}
	}
	return nil
}
