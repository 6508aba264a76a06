package loam

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/loam"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// statusDocID is the document id of a status file relative to its deliverable folder.
const statusDocID = "_STATUS"

// Ledger implements ports.StatusLedger by keeping each deliverable's _STATUS.md
// as a frontmatter document inside the project workspace.
type Ledger struct {
	Root string
	Repo *loam.TypedRepository[StatusMetadata]
	now  func() time.Time
}

// Open initializes a ledger over the workspace at root.
func Open(root string) (*Ledger, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ledger root: %w", err)
	}

	repo, err := loam.Init(absRoot, loam.WithVersioning(false), loam.WithForceTemp(false))
	if err != nil {
		return nil, fmt.Errorf("failed to init loam repository: %w", err)
	}
	return New(absRoot, loam.NewTypedRepository[StatusMetadata](repo)), nil
}

// New wraps an existing typed repository rooted at root.
func New(root string, repo *loam.TypedRepository[StatusMetadata]) *Ledger {
	return &Ledger{Root: root, Repo: repo, now: time.Now}
}

// docID maps a deliverable folder to the loam id of its status file.
func (l *Ledger) docID(folder string) (string, error) {
	rel, err := filepath.Rel(l.Root, folder)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("deliverable folder %s is outside ledger root %s", folder, l.Root)
	}
	return filepath.ToSlash(filepath.Join(rel, statusDocID)), nil
}

// Read returns the status metadata of a deliverable. A missing or blank file
// yields a zero record; a file that cannot be parsed is an error, so a later
// RecordTransition never overwrites history it could not read.
func (l *Ledger) Read(ctx context.Context, d domain.Deliverable) (StatusMetadata, error) {
	id, err := l.docID(d.FolderPath)
	if err != nil {
		return StatusMetadata{}, err
	}
	raw, err := os.ReadFile(filepath.Join(d.FolderPath, statusDocID+".md"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return StatusMetadata{}, nil
	case err != nil:
		return StatusMetadata{}, fmt.Errorf("failed to read status for %s: %w", d.ID, err)
	case len(bytes.TrimSpace(raw)) == 0:
		return StatusMetadata{}, nil
	}
	doc, err := l.Repo.Get(ctx, id)
	if err != nil {
		return StatusMetadata{}, fmt.Errorf("failed to parse status for %s: %w", d.ID, err)
	}
	return doc.Data, nil
}

// RecordTransition appends the transition to the history and rewrites the file.
func (l *Ledger) RecordTransition(ctx context.Context, d domain.Deliverable, from, to domain.DeliverableState, by domain.Actor) error {
	id, err := l.docID(d.FolderPath)
	if err != nil {
		return err
	}

	meta, err := l.Read(ctx, d)
	if err != nil {
		return err
	}

	at := l.now().UTC().Format(time.RFC3339)
	meta.DeliverableID = d.ID.String()
	meta.Label = d.Label
	meta.State = string(to)
	meta.UpdatedAt = at
	meta.UpdatedBy = by.String()
	meta.History = append(meta.History, StatusEntry{
		From: string(from),
		To:   string(to),
		By:   by.String(),
		At:   at,
	})

	err = l.Repo.Save(ctx, &loam.DocumentModel[StatusMetadata]{
		ID:      id,
		Content: renderStatus(meta),
		Data:    meta,
	})
	if err != nil {
		return fmt.Errorf("failed to save status for %s: %w", d.ID, err)
	}
	return nil
}

// renderStatus writes the markdown body shown under the frontmatter.
func renderStatus(meta StatusMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Status: %s\n\n", meta.Label)
	fmt.Fprintf(&b, "**Current state:** %s\n\n", meta.State)
	b.WriteString("| When | From | To | By |\n|---|---|---|---|\n")
	for _, e := range meta.History {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", e.At, e.From, e.To, e.By)
	}
	return b.String()
}
