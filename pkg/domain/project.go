package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Project is the aggregate root of a workspace.
type Project struct {
	ID                ProjectID `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	WorkspacePath     string    `json:"workspace_path"`
	DecompositionPath string    `json:"decomposition_path,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	CreatedBy         Actor     `json:"created_by"`
}

// ProjectOption configures optional Project fields at construction.
type ProjectOption func(*Project)

// WithDescription sets the project description.
func WithDescription(desc string) ProjectOption {
	return func(p *Project) { p.Description = desc }
}

// WithDecomposition points the project at its decomposition document.
func WithDecomposition(path string) ProjectOption {
	return func(p *Project) { p.DecompositionPath = path }
}

// NewProject creates a project rooted at workspacePath.
func NewProject(name, workspacePath string, by Actor, opts ...ProjectOption) Project {
	p := Project{
		ID:            NewProjectID(),
		Name:          name,
		WorkspacePath: workspacePath,
		CreatedAt:     time.Now().UTC(),
		CreatedBy:     by,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Update returns a copy of p with the options applied. Only description and
// decomposition options are honored; identity and provenance never change.
func (p Project) Update(opts ...ProjectOption) Project {
	next := p
	for _, opt := range opts {
		opt(&next)
	}
	next.ID, next.Name, next.WorkspacePath = p.ID, p.Name, p.WorkspacePath
	next.CreatedAt, next.CreatedBy = p.CreatedAt, p.CreatedBy
	return next
}

// Package is a flat scope partition owned by exactly one Project.
type Package struct {
	ID         PackageID `json:"id"`
	ProjectID  ProjectID `json:"project_id"`
	Label      string    `json:"label"`
	ScopeItems []string  `json:"scope_items"`
	FolderName string    `json:"folder_name"`
}

// PackageOption configures optional Package fields at construction.
type PackageOption func(*packageConfig)

type packageConfig struct {
	legacyNum  int
	scopeItems []string
}

// WithLegacyPackageNumber assigns the deterministic PKG-### id and folder prefix.
// Numbers LegacyPackageID rejects leave the generated id in place.
func WithLegacyPackageNumber(num int) PackageOption {
	return func(c *packageConfig) { c.legacyNum = num }
}

// WithScopeItems sets the ordered scope items the package owns.
func WithScopeItems(items ...string) PackageOption {
	return func(c *packageConfig) { c.scopeItems = append([]string(nil), items...) }
}

// NewPackage creates a package under projectID.
func NewPackage(projectID ProjectID, label string, opts ...PackageOption) Package {
	var cfg packageConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	pkg := Package{
		ID:         NewPackageID(),
		ProjectID:  projectID,
		Label:      label,
		ScopeItems: cfg.scopeItems,
		FolderName: SanitizeLabel(label),
	}
	if id, err := LegacyPackageID(cfg.legacyNum); err == nil {
		pkg.ID = id
		pkg.FolderName = fmt.Sprintf("%s_%s", pkg.ID, SanitizeLabel(label))
	}
	if pkg.ScopeItems == nil {
		pkg.ScopeItems = []string{}
	}
	return pkg
}

// SanitizeLabel replaces every rune that is not a letter, digit or underscore with '_'.
func SanitizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, label)
}
