package domain

import (
	"fmt"
	"time"
)

// DocumentType is one of the four core production documents or five metadata files.
type DocumentType string

const (
	DocDatasheet     DocumentType = "DATASHEET"
	DocSpecification DocumentType = "SPECIFICATION"
	DocGuidance      DocumentType = "GUIDANCE"
	DocProcedure     DocumentType = "PROCEDURE"

	DocContext      DocumentType = "CONTEXT"
	DocStatus       DocumentType = "STATUS"
	DocDependencies DocumentType = "DEPENDENCIES"
	DocReferences   DocumentType = "REFERENCES"
	DocSemantic     DocumentType = "SEMANTIC"
)

// CoreDocumentTypes are the four documents every deliverable produces.
var CoreDocumentTypes = []DocumentType{DocDatasheet, DocSpecification, DocGuidance, DocProcedure}

// MetadataDocumentTypes are the underscore-prefixed bookkeeping files.
var MetadataDocumentTypes = []DocumentType{DocContext, DocStatus, DocDependencies, DocReferences, DocSemantic}

// ScaffoldDocumentTypes returns every type created in a fresh deliverable folder, core first.
func ScaffoldDocumentTypes() []DocumentType {
	out := make([]DocumentType, 0, len(CoreDocumentTypes)+len(MetadataDocumentTypes))
	out = append(out, CoreDocumentTypes...)
	return append(out, MetadataDocumentTypes...)
}

// Filename returns the file name a document of this type uses inside a deliverable folder.
// It returns "" for unknown types.
func (t DocumentType) Filename() string {
	switch t {
	case DocDatasheet:
		return "Datasheet.md"
	case DocSpecification:
		return "Specification.md"
	case DocGuidance:
		return "Guidance.md"
	case DocProcedure:
		return "Procedure.md"
	case DocContext:
		return "_CONTEXT.md"
	case DocStatus:
		return "_STATUS.md"
	case DocDependencies:
		return "_DEPENDENCIES.md"
	case DocReferences:
		return "_REFERENCES.md"
	case DocSemantic:
		return "_SEMANTIC.md"
	}
	return ""
}

// IsCore reports whether t is one of the four core documents.
func (t DocumentType) IsCore() bool {
	switch t {
	case DocDatasheet, DocSpecification, DocGuidance, DocProcedure:
		return true
	}
	return false
}

// IsMetadata reports whether t is a metadata file.
func (t DocumentType) IsMetadata() bool {
	switch t {
	case DocContext, DocStatus, DocDependencies, DocReferences, DocSemantic:
		return true
	}
	return false
}

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool { return t.IsCore() || t.IsMetadata() }

func (t *DocumentType) UnmarshalText(text []byte) error {
	v := DocumentType(text)
	if !v.Valid() {
		return fmt.Errorf("unknown document type %q", text)
	}
	*t = v
	return nil
}

// Document is a content-addressed artifact owned by one Deliverable.
type Document struct {
	ID            DocumentID    `json:"id"`
	DeliverableID DeliverableID `json:"deliverable_id"`
	Type          DocumentType  `json:"document_type"`
	Path          string        `json:"path"`
	ContentHash   ContentHash   `json:"content_hash"`
	State         DocumentState `json:"state"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	CreatedBy     Actor         `json:"created_by"`
	UpdatedBy     Actor         `json:"updated_by"`
}

// NewDocument creates a Draft document.
func NewDocument(deliverableID DeliverableID, docType DocumentType, path string, hash ContentHash, by Actor) Document {
	now := time.Now().UTC()
	return Document{
		ID:            NewDocumentID(),
		DeliverableID: deliverableID,
		Type:          docType,
		Path:          path,
		ContentHash:   hash,
		State:         DocumentDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     by,
		UpdatedBy:     by,
	}
}

// UpdateContent records new content. The timestamp and updating actor always move with the hash.
func (d *Document) UpdateContent(hash ContentHash, by Actor) {
	d.ContentHash = hash
	d.UpdatedAt = time.Now().UTC()
	d.UpdatedBy = by
}

// TransitionTo moves the document through review. State is unchanged on error.
func (d *Document) TransitionTo(target DocumentState, by Actor) error {
	next, err := d.State.TransitionTo(target)
	if err != nil {
		return err
	}
	d.State = next
	d.UpdatedAt = time.Now().UTC()
	d.UpdatedBy = by
	return nil
}

// Ref returns the reference a Deliverable keeps for this document.
func (d Document) Ref() DocumentRef {
	return DocumentRef{ID: d.ID, Type: d.Type, Path: d.Path}
}
