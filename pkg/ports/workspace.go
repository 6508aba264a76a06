package ports

import (
	"context"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// Workspace is the filesystem collaborator. The runtime calls the write-scope
// guard before every mutating call; implementations do not re-check scopes.
type Workspace interface {
	// Read returns the bytes at path. Missing files wrap ErrFileNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write replaces the file at path, creating parent directories, and returns its content hash.
	Write(ctx context.Context, path string, content []byte) (domain.ContentHash, error)

	// ListDir returns the entry names directly under path, sorted.
	ListDir(ctx context.Context, path string) ([]string, error)

	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Hash returns the content hash of the file at path.
	Hash(ctx context.Context, path string) (domain.ContentHash, error)

	// CreateDirAll creates path and any missing parents.
	CreateDirAll(ctx context.Context, path string) error

	// Delete removes the file or empty directory at path.
	Delete(ctx context.Context, path string) error

	// ScaffoldDeliverable creates the deliverable folder with empty core and metadata
	// files. Existing files are left untouched.
	ScaffoldDeliverable(ctx context.Context, path string) error
}

// FsChangeType classifies a workspace change.
type FsChangeType string

const (
	FsCreated  FsChangeType = "CREATED"
	FsModified FsChangeType = "MODIFIED"
	FsDeleted  FsChangeType = "DELETED"
)

// FsChangeEvent reports one change under a watched workspace.
type FsChangeEvent struct {
	Path       string       `json:"path"`
	ChangeType FsChangeType `json:"change_type"`
}

// Watchable is implemented by workspaces that can stream change notifications.
type Watchable interface {
	// Watch streams changes until ctx is canceled, then closes the channel.
	Watch(ctx context.Context) (<-chan FsChangeEvent, error)
}

// StatusLedger keeps the human-readable status record of each deliverable.
type StatusLedger interface {
	// RecordTransition appends a state change to the deliverable's status record.
	RecordTransition(ctx context.Context, d domain.Deliverable, from, to domain.DeliverableState, by domain.Actor) error
}
