package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sgttomas/chirality-runtime/internal/logging"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// Workspace implements ports.Workspace and ports.Watchable over the local filesystem.
// Root bounds Watch; the other operations accept any absolute path.
type Workspace struct {
	Root   string
	logger *slog.Logger
}

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithWorkspaceLogger sets the logger used by Watch.
func WithWorkspaceLogger(logger *slog.Logger) WorkspaceOption {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWorkspace creates a workspace rooted at root.
func NewWorkspace(root string, opts ...WorkspaceOption) *Workspace {
	w := &Workspace{Root: root, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// classify maps an os error onto the port sentinels.
func classify(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ports.ErrFileNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ports.ErrPermissionDenied, path)
	default:
		return fmt.Errorf("%w: %s %s: %v", ports.ErrIO, op, path, err)
	}
}

func (w *Workspace) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, classify("read", path, err)
	}
	return data, nil
}

func (w *Workspace) Write(ctx context.Context, path string, content []byte) (domain.ContentHash, error) {
	if err := writeAtomic(filepath.Dir(path), path, content); err != nil {
		return "", classify("write", path, err)
	}
	return domain.HashBytes(content), nil
}

func (w *Workspace) ListDir(ctx context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, classify("list", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (w *Workspace) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, classify("stat", path, err)
}

func (w *Workspace) Hash(ctx context.Context, path string) (domain.ContentHash, error) {
	data, err := w.Read(ctx, path)
	if err != nil {
		return "", err
	}
	return domain.HashBytes(data), nil
}

func (w *Workspace) CreateDirAll(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return classify("mkdir", path, err)
	}
	return nil
}

func (w *Workspace) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		return classify("delete", path, err)
	}
	return nil
}

func (w *Workspace) ScaffoldDeliverable(ctx context.Context, path string) error {
	if err := w.CreateDirAll(ctx, path); err != nil {
		return err
	}
	for _, dt := range domain.ScaffoldDocumentTypes() {
		p := filepath.Join(path, dt.Filename())
		f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return classify("scaffold", p, err)
		}
		if err := f.Close(); err != nil {
			return classify("scaffold", p, err)
		}
	}
	return nil
}

// Watch implements ports.Watchable. Directories created after the call are watched too.
func (w *Workspace) Watch(ctx context.Context) (<-chan ports.FsChangeEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	if err := w.addTree(watcher, w.Root); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ch := make(chan ports.FsChangeEvent, 16)

	go func() {
		defer close(ch)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("workspace watcher error", "err", err)
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				change, ok := w.translate(watcher, evt)
				if !ok {
					continue
				}
				select {
				case ch <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func (w *Workspace) addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Workspace) translate(watcher *fsnotify.Watcher, evt fsnotify.Event) (ports.FsChangeEvent, bool) {
	if strings.HasPrefix(filepath.Base(evt.Name), tempPrefix) {
		return ports.FsChangeEvent{}, false
	}

	switch {
	case evt.Has(fsnotify.Create):
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if err := w.addTree(watcher, evt.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", evt.Name, "err", err)
			}
		}
		return ports.FsChangeEvent{Path: evt.Name, ChangeType: ports.FsCreated}, true
	case evt.Has(fsnotify.Write):
		return ports.FsChangeEvent{Path: evt.Name, ChangeType: ports.FsModified}, true
	case evt.Has(fsnotify.Remove), evt.Has(fsnotify.Rename):
		return ports.FsChangeEvent{Path: evt.Name, ChangeType: ports.FsDeleted}, true
	}
	return ports.FsChangeEvent{}, false
}
