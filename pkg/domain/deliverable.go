package domain

import (
	"fmt"
	"path/filepath"
)

// DocumentRef is a Deliverable's pointer to one of its documents.
type DocumentRef struct {
	ID   DocumentID   `json:"id"`
	Type DocumentType `json:"document_type"`
	Path string       `json:"file_path"`
}

// Deliverable is the primary unit of work, owned by exactly one Package.
type Deliverable struct {
	ID                   DeliverableID    `json:"id"`
	PackageID            PackageID        `json:"package_id"`
	Label                string           `json:"label"`
	Type                 string           `json:"deliverable_type,omitempty"`
	Discipline           string           `json:"discipline,omitempty"`
	ResponsibleParty     string           `json:"responsible_party,omitempty"`
	State                DeliverableState `json:"state"`
	FolderPath           string           `json:"folder_path"`
	Documents            []DocumentRef    `json:"documents"`
	AnticipatedArtifacts []string         `json:"anticipated_artifacts"`
}

// DeliverableOption configures optional Deliverable fields at construction.
type DeliverableOption func(*Deliverable)

// WithLegacyDeliverableNumber assigns the deterministic DEL-##.## id. Numbers
// LegacyDeliverableID rejects leave the generated id in place.
func WithLegacyDeliverableNumber(pkgNum, delNum int) DeliverableOption {
	return func(d *Deliverable) {
		if id, err := LegacyDeliverableID(pkgNum, delNum); err == nil {
			d.ID = id
		}
	}
}

// WithDeliverableType sets the deliverable type, e.g. "Drawing".
func WithDeliverableType(t string) DeliverableOption {
	return func(d *Deliverable) { d.Type = t }
}

// WithDiscipline sets the engineering discipline.
func WithDiscipline(discipline string) DeliverableOption {
	return func(d *Deliverable) { d.Discipline = discipline }
}

// WithResponsibleParty sets who is accountable for the deliverable.
func WithResponsibleParty(party string) DeliverableOption {
	return func(d *Deliverable) { d.ResponsibleParty = party }
}

// WithAnticipatedArtifacts records artifact names the deliverable is expected to produce.
func WithAnticipatedArtifacts(names ...string) DeliverableOption {
	return func(d *Deliverable) { d.AnticipatedArtifacts = append([]string(nil), names...) }
}

// NewDeliverable creates an Open deliverable.
func NewDeliverable(packageID PackageID, label, folderPath string, opts ...DeliverableOption) Deliverable {
	d := Deliverable{
		ID:                   NewDeliverableID(),
		PackageID:            packageID,
		Label:                label,
		State:                DeliverableOpen,
		FolderPath:           folderPath,
		Documents:            []DocumentRef{},
		AnticipatedArtifacts: []string{},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// TransitionTo moves the deliverable along its lifecycle. State is unchanged on error.
func (d *Deliverable) TransitionTo(target DeliverableState) error {
	next, err := d.State.TransitionTo(target)
	if err != nil {
		return err
	}
	d.State = next
	return nil
}

// AddDocument appends a document reference. A deliverable holds at most one
// document per type, and an Issued deliverable accepts none.
func (d *Deliverable) AddDocument(ref DocumentRef) error {
	if d.State.IsTerminal() {
		return &InvalidStateError{Message: fmt.Sprintf("deliverable %s is %s", d.ID, d.State)}
	}
	if !ref.Type.Valid() {
		return &PreconditionFailedError{Message: fmt.Sprintf("unknown document type %q", ref.Type)}
	}
	for _, existing := range d.Documents {
		if existing.ID == ref.ID {
			return &PreconditionFailedError{Message: fmt.Sprintf("document %s already registered", ref.ID)}
		}
		if existing.Type == ref.Type {
			return &PreconditionFailedError{Message: fmt.Sprintf("deliverable %s already has a %s document", d.ID, ref.Type)}
		}
	}
	d.Documents = append(d.Documents, ref)
	return nil
}

// Document returns the reference for docType, if registered.
func (d Deliverable) Document(docType DocumentType) (DocumentRef, bool) {
	for _, ref := range d.Documents {
		if ref.Type == docType {
			return ref, true
		}
	}
	return DocumentRef{}, false
}

// MissingCoreDocuments lists the core document types not yet registered.
func (d Deliverable) MissingCoreDocuments() []DocumentType {
	var missing []DocumentType
	for _, t := range CoreDocumentTypes {
		if _, ok := d.Document(t); !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

// DocumentPath returns where a document of docType lives inside the deliverable folder.
func (d Deliverable) DocumentPath(docType DocumentType) string {
	return filepath.Join(d.FolderPath, docType.Filename())
}

// WriteScope returns the scope that confines a session to this deliverable's folder.
func (d Deliverable) WriteScope() WriteScope {
	return DeliverableLocal{DeliverableID: d.ID, DeliverablePath: d.FolderPath}
}
