package ports

import (
	"context"
	"time"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// CommitInfo describes one commit in history.
type CommitInfo struct {
	Hash        domain.CommitHash `json:"hash"`
	Message     string            `json:"message"`
	AuthorName  string            `json:"author_name"`
	AuthorEmail string            `json:"author_email"`
	Timestamp   time.Time         `json:"timestamp"`
}

// VersionControl is the git collaborator. Every commit is attributed to an Actor.
type VersionControl interface {
	Stage(ctx context.Context, paths ...string) error
	StageAll(ctx context.Context) error
	Commit(ctx context.Context, message string, author domain.Actor) (domain.CommitHash, error)
	Head(ctx context.Context) (domain.CommitHash, error)
	CurrentBranch(ctx context.Context) (string, error)
	CreateBranch(ctx context.Context, name string) error
	Checkout(ctx context.Context, name string) error
	// Merge merges branch into the current branch. Conflicts return a *MergeConflictError.
	Merge(ctx context.Context, branch string) (domain.CommitHash, error)
	DeleteBranch(ctx context.Context, name string) error
	// Log returns up to limit commits, newest first, optionally restricted to path.
	Log(ctx context.Context, path string, limit int) ([]CommitInfo, error)
	// Tag creates a tag at HEAD; an empty message creates a lightweight tag.
	Tag(ctx context.Context, name, message string) error
}
