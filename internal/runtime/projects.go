package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

const (
	entityProject     = "Project"
	entityPackage     = "Package"
	entityDeliverable = "Deliverable"
	entityDocument    = "Document"
)

// CreateProjectRequest describes a new project.
type CreateProjectRequest struct {
	Name          string       `json:"name"`
	WorkspacePath string       `json:"workspace_path"`
	Description   string       `json:"description,omitempty"`
	Decomposition string       `json:"decomposition_path,omitempty"`
	Actor         domain.Actor `json:"-"`
}

// CreateProject persists a project rooted at an absolute workspace path.
func (o *Orchestrator) CreateProject(ctx context.Context, req CreateProjectRequest) (*domain.Project, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &domain.PreconditionFailedError{Message: "project name cannot be empty"}
	}
	if !filepath.IsAbs(req.WorkspacePath) {
		return nil, &domain.PreconditionFailedError{Message: fmt.Sprintf("workspace path %q must be absolute", req.WorkspacePath)}
	}
	var opts []domain.ProjectOption
	if req.Description != "" {
		opts = append(opts, domain.WithDescription(req.Description))
	}
	if req.Decomposition != "" {
		opts = append(opts, domain.WithDecomposition(req.Decomposition))
	}
	p := domain.NewProject(req.Name, filepath.Clean(req.WorkspacePath), req.Actor, opts...)

	err := o.withLock(ctx, p.ID.String(), func(ctx context.Context) error {
		if err := o.workspace.CreateDirAll(ctx, p.WorkspacePath); err != nil {
			return fmt.Errorf("failed to create project workspace: %w", err)
		}
		return o.stores.Projects.Save(ctx, p.ID.String(), &p)
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("project created", "project_id", p.ID, "name", p.Name, "workspace", p.WorkspacePath)
	return &p, nil
}

// GetProject loads a project.
func (o *Orchestrator) GetProject(ctx context.Context, id domain.ProjectID) (*domain.Project, error) {
	return load(ctx, o.stores.Projects, entityProject, id.String())
}

// CreatePackageRequest describes a new package.
type CreatePackageRequest struct {
	ProjectID    domain.ProjectID `json:"project_id"`
	Label        string           `json:"label"`
	ScopeItems   []string         `json:"scope_items"`
	LegacyNumber int              `json:"legacy_number,omitempty"`
}

// CreatePackage persists a package under an existing project.
// A legacy number that is already taken fails the request.
func (o *Orchestrator) CreatePackage(ctx context.Context, req CreatePackageRequest) (*domain.Package, error) {
	if strings.TrimSpace(req.Label) == "" {
		return nil, &domain.PreconditionFailedError{Message: "package label cannot be empty"}
	}
	project, err := o.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	opts := []domain.PackageOption{domain.WithScopeItems(req.ScopeItems...)}
	if req.LegacyNumber != 0 {
		if _, err := domain.LegacyPackageID(req.LegacyNumber); err != nil {
			return nil, &domain.PreconditionFailedError{Message: err.Error()}
		}
		opts = append(opts, domain.WithLegacyPackageNumber(req.LegacyNumber))
	}
	pkg := domain.NewPackage(project.ID, req.Label, opts...)

	err = o.withLock(ctx, pkg.ID.String(), func(ctx context.Context) error {
		if _, err := o.stores.Packages.Load(ctx, pkg.ID.String()); err == nil {
			return &domain.PreconditionFailedError{Message: fmt.Sprintf("package %s already exists", pkg.ID)}
		}
		if err := o.workspace.CreateDirAll(ctx, filepath.Join(project.WorkspacePath, pkg.FolderName)); err != nil {
			return fmt.Errorf("failed to create package folder: %w", err)
		}
		return o.stores.Packages.Save(ctx, pkg.ID.String(), &pkg)
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("package created", "package_id", pkg.ID, "project_id", project.ID, "folder", pkg.FolderName)
	return &pkg, nil
}

// GetPackage loads a package.
func (o *Orchestrator) GetPackage(ctx context.Context, id domain.PackageID) (*domain.Package, error) {
	return load(ctx, o.stores.Packages, entityPackage, id.String())
}

// CreateDeliverableRequest describes a new deliverable.
type CreateDeliverableRequest struct {
	PackageID            domain.PackageID `json:"package_id"`
	Label                string           `json:"label"`
	Type                 string           `json:"deliverable_type,omitempty"`
	Discipline           string           `json:"discipline,omitempty"`
	ResponsibleParty     string           `json:"responsible_party,omitempty"`
	AnticipatedArtifacts []string         `json:"anticipated_artifacts,omitempty"`
	// LegacyNumber assigns DEL-<package>.<n> when the package has a legacy number too.
	LegacyNumber int `json:"legacy_number,omitempty"`
}

// CreateDeliverable persists an Open deliverable and scaffolds its folder.
// The scaffold is checked against a ToolRootOnly scope on the project root.
func (o *Orchestrator) CreateDeliverable(ctx context.Context, req CreateDeliverableRequest) (*domain.Deliverable, error) {
	if strings.TrimSpace(req.Label) == "" {
		return nil, &domain.PreconditionFailedError{Message: "deliverable label cannot be empty"}
	}
	pkg, err := o.GetPackage(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	project, err := o.GetProject(ctx, pkg.ProjectID)
	if err != nil {
		return nil, err
	}

	var opts []domain.DeliverableOption
	if req.Type != "" {
		opts = append(opts, domain.WithDeliverableType(req.Type))
	}
	if req.Discipline != "" {
		opts = append(opts, domain.WithDiscipline(req.Discipline))
	}
	if req.ResponsibleParty != "" {
		opts = append(opts, domain.WithResponsibleParty(req.ResponsibleParty))
	}
	if len(req.AnticipatedArtifacts) > 0 {
		opts = append(opts, domain.WithAnticipatedArtifacts(req.AnticipatedArtifacts...))
	}
	folder := domain.SanitizeLabel(req.Label)
	if req.LegacyNumber != 0 {
		pkgNum, ok := pkg.ID.LegacyNumber()
		if !ok {
			return nil, &domain.PreconditionFailedError{
				Message: fmt.Sprintf("package %s has no legacy number", pkg.ID),
			}
		}
		if _, err := domain.LegacyDeliverableID(pkgNum, req.LegacyNumber); err != nil {
			return nil, &domain.PreconditionFailedError{Message: err.Error()}
		}
		opts = append(opts, domain.WithLegacyDeliverableNumber(pkgNum, req.LegacyNumber))
	}
	root := project.WorkspacePath
	d := domain.NewDeliverable(pkg.ID, req.Label, "", opts...)
	if req.LegacyNumber != 0 {
		folder = fmt.Sprintf("%s_%s", d.ID, folder)
	}
	d.FolderPath = filepath.Join(root, pkg.FolderName, folder)

	err = o.withLock(ctx, d.ID.String(), func(ctx context.Context) error {
		if _, err := o.stores.Deliverables.Load(ctx, d.ID.String()); err == nil {
			return &domain.PreconditionFailedError{Message: fmt.Sprintf("deliverable %s already exists", d.ID)}
		}
		decision := o.guard.Validate(domain.ToolRootOnly{RootPath: root}, d.FolderPath)
		if !decision.Allowed {
			o.fireDenied(ctx, "", decision.Violation)
			return decision.Violation
		}
		if err := o.workspace.ScaffoldDeliverable(ctx, d.FolderPath); err != nil {
			return fmt.Errorf("failed to scaffold deliverable: %w", err)
		}
		return o.stores.Deliverables.Save(ctx, d.ID.String(), &d)
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("deliverable created", "deliverable_id", d.ID, "package_id", pkg.ID, "folder", d.FolderPath)
	return &d, nil
}

// GetDeliverable loads a deliverable.
func (o *Orchestrator) GetDeliverable(ctx context.Context, id domain.DeliverableID) (*domain.Deliverable, error) {
	return load(ctx, o.stores.Deliverables, entityDeliverable, id.String())
}

// ListDeliverables returns every deliverable, optionally restricted to one package, ordered by id.
func (o *Orchestrator) ListDeliverables(ctx context.Context, packageID domain.PackageID) ([]domain.Deliverable, error) {
	ids, err := o.stores.Deliverables.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliverables: %w", err)
	}
	sort.Strings(ids)
	out := make([]domain.Deliverable, 0, len(ids))
	for _, id := range ids {
		d, err := o.stores.Deliverables.Load(ctx, id)
		if err != nil {
			o.logger.Warn("skipping unreadable deliverable", "deliverable_id", id, "err", err)
			continue
		}
		if packageID != "" && d.PackageID != packageID {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

// TransitionDeliverable moves a deliverable to target. Issuing requires a human actor.
// The status ledger and version control are updated after the new state is saved;
// their failures are logged and do not roll the transition back.
func (o *Orchestrator) TransitionDeliverable(ctx context.Context, id domain.DeliverableID, target domain.DeliverableState, actor domain.Actor) (*domain.Deliverable, error) {
	if target == domain.DeliverableIssued {
		if err := domain.RequireHuman(actor, "issuing a deliverable"); err != nil {
			return nil, err
		}
	}
	var (
		d    *domain.Deliverable
		from domain.DeliverableState
	)
	err := o.withLock(ctx, id.String(), func(ctx context.Context) error {
		var err error
		d, err = load(ctx, o.stores.Deliverables, entityDeliverable, id.String())
		if err != nil {
			return err
		}
		from = d.State
		if err := d.TransitionTo(target); err != nil {
			return err
		}
		if err := o.stores.Deliverables.Save(ctx, id.String(), d); err != nil {
			return fmt.Errorf("failed to save deliverable: %w", err)
		}
		if o.ledger != nil {
			if err := o.ledger.RecordTransition(ctx, *d, from, d.State, actor); err != nil {
				o.logger.Warn("failed to update status ledger", "deliverable_id", id, "err", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("deliverable transitioned", "deliverable_id", id, "from", from, "to", d.State, "actor", actor)
	o.fireDeliverable(ctx, d, from, actor)
	if d.State == domain.DeliverableIssued && o.vcs != nil {
		o.recordIssue(ctx, d, actor)
	}
	return d, nil
}

// recordIssue commits the workspace and tags the issued deliverable.
func (o *Orchestrator) recordIssue(ctx context.Context, d *domain.Deliverable, actor domain.Actor) {
	if err := o.vcs.StageAll(ctx); err != nil {
		o.logger.Warn("failed to stage issued deliverable", "deliverable_id", d.ID, "err", err)
		return
	}
	hash, err := o.vcs.Commit(ctx, fmt.Sprintf("Issue %s: %s", d.ID, d.Label), actor)
	if err != nil {
		o.logger.Warn("failed to commit issued deliverable", "deliverable_id", d.ID, "err", err)
		return
	}
	tag := IssueTag(d.ID)
	if err := o.vcs.Tag(ctx, tag, fmt.Sprintf("%s issued by %s", d.Label, actor)); err != nil {
		o.logger.Warn("failed to tag issued deliverable", "deliverable_id", d.ID, "tag", tag, "err", err)
		return
	}
	o.logger.Info("deliverable issued", "deliverable_id", d.ID, "commit", hash, "tag", tag)
}

// IssueTag is the version-control tag marking an issued deliverable.
func IssueTag(id domain.DeliverableID) string {
	return "issued/" + strings.ReplaceAll(id.String(), ":", "-")
}

// RegisterDocument records the deliverable's document of docType at its canonical path.
// The document starts as Draft with the hash of whatever the workspace holds there;
// a missing file is created empty, inside the deliverable's write scope only.
func (o *Orchestrator) RegisterDocument(ctx context.Context, deliverableID domain.DeliverableID, docType domain.DocumentType, actor domain.Actor) (*domain.Document, error) {
	if !docType.Valid() {
		return nil, &domain.PreconditionFailedError{Message: fmt.Sprintf("unknown document type %q", docType)}
	}
	var doc domain.Document
	err := o.withLock(ctx, deliverableID.String(), func(ctx context.Context) error {
		d, err := load(ctx, o.stores.Deliverables, entityDeliverable, deliverableID.String())
		if err != nil {
			return err
		}
		path := d.DocumentPath(docType)
		doc = domain.NewDocument(d.ID, docType, path, "", actor)
		if err := d.AddDocument(doc.Ref()); err != nil {
			return err
		}

		created := false
		hash, err := o.workspace.Hash(ctx, path)
		if err != nil {
			decision := o.guard.Validate(d.WriteScope(), path)
			if !decision.Allowed {
				o.fireDenied(ctx, "", decision.Violation)
				return decision.Violation
			}
			if hash, err = o.workspace.Write(ctx, path, nil); err != nil {
				return fmt.Errorf("failed to create document file: %w", err)
			}
			created = true
		}
		doc.ContentHash = hash

		rollback := func() {
			if created {
				o.discard(ctx, path)
			}
		}
		if err := o.stores.Documents.Save(ctx, doc.ID.String(), &doc); err != nil {
			rollback()
			return fmt.Errorf("failed to save document: %w", err)
		}
		if err := o.stores.Deliverables.Save(ctx, d.ID.String(), d); err != nil {
			if derr := o.stores.Documents.Delete(ctx, doc.ID.String()); derr != nil {
				o.logger.Warn("failed to remove orphaned document", "document_id", doc.ID, "err", derr)
			}
			rollback()
			return fmt.Errorf("failed to save deliverable: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.logger.Debug("document registered", "document_id", doc.ID, "deliverable_id", deliverableID, "type", docType)
	return &doc, nil
}

// discard removes a file written by a mutation that did not complete.
func (o *Orchestrator) discard(ctx context.Context, path string) {
	if err := o.workspace.Delete(ctx, path); err != nil {
		o.logger.Warn("failed to remove orphaned file", "path", path, "err", err)
	}
}

// GetDocument loads a document.
func (o *Orchestrator) GetDocument(ctx context.Context, id domain.DocumentID) (*domain.Document, error) {
	return load(ctx, o.stores.Documents, entityDocument, id.String())
}

// TransitionDocument moves a document through review.
func (o *Orchestrator) TransitionDocument(ctx context.Context, id domain.DocumentID, target domain.DocumentState, actor domain.Actor) (*domain.Document, error) {
	var doc *domain.Document
	err := o.withLock(ctx, id.String(), func(ctx context.Context) error {
		var err error
		doc, err = load(ctx, o.stores.Documents, entityDocument, id.String())
		if err != nil {
			return err
		}
		if err := doc.TransitionTo(target, actor); err != nil {
			return err
		}
		return o.stores.Documents.Save(ctx, id.String(), doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// refreshDocument updates the hash of the deliverable document stored at path, if any.
func (o *Orchestrator) refreshDocument(ctx context.Context, deliverableID domain.DeliverableID, path string, hash domain.ContentHash, actor domain.Actor) error {
	d, err := o.GetDeliverable(ctx, deliverableID)
	if err != nil {
		return err
	}
	for _, ref := range d.Documents {
		if filepath.Clean(ref.Path) != filepath.Clean(path) {
			continue
		}
		return o.withLock(ctx, ref.ID.String(), func(ctx context.Context) error {
			doc, err := load(ctx, o.stores.Documents, entityDocument, ref.ID.String())
			if err != nil {
				return err
			}
			doc.UpdateContent(hash, actor)
			return o.stores.Documents.Save(ctx, ref.ID.String(), doc)
		})
	}
	return nil
}
