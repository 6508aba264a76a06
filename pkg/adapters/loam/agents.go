package loam

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// Agent is one entry of the agent catalog. The markdown body is the agent's standing instructions.
type Agent struct {
	Name         string            `json:"name"`
	Type         domain.AgentType  `json:"agent_type"`
	Class        domain.AgentClass `json:"agent_class"`
	Description  string            `json:"description,omitempty"`
	Instructions string            `json:"instructions"`
}

// Catalog reads agent definitions from a directory of markdown files.
type Catalog struct {
	Repo *loam.TypedRepository[AgentMetadata]
}

// OpenCatalog opens the agents directory read-only.
func OpenCatalog(dir string) (*Catalog, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve agents dir: %w", err)
	}
	repo, err := loam.Init(abs, loam.WithReadOnly(true), loam.WithVersioning(false))
	if err != nil {
		return nil, fmt.Errorf("failed to init loam repository: %w", err)
	}
	return NewCatalog(loam.NewTypedRepository[AgentMetadata](repo)), nil
}

// NewCatalog wraps an existing typed repository.
func NewCatalog(repo *loam.TypedRepository[AgentMetadata]) *Catalog {
	return &Catalog{Repo: repo}
}

// Agents lists every definition, ordered by name. The name defaults to the
// file name, the type to SPECIALIST and the class to TASK.
func (c *Catalog) Agents(ctx context.Context) ([]Agent, error) {
	docs, err := c.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	agents := make([]Agent, 0, len(docs))
	seen := make(map[string]string)
	for _, doc := range docs {
		a := Agent{
			Name:         doc.Data.Name,
			Type:         domain.AgentType(strings.ToUpper(doc.Data.Type)),
			Class:        domain.AgentClass(strings.ToUpper(doc.Data.Class)),
			Description:  doc.Data.Description,
			Instructions: strings.TrimSpace(doc.Content),
		}
		if a.Name == "" {
			a.Name = trimExtension(path.Base(filepath.ToSlash(doc.ID)))
		}
		if a.Type == "" {
			a.Type = domain.AgentSpecialist
		}
		if a.Class == "" {
			a.Class = domain.AgentClassTask
		}
		if !a.Type.Valid() {
			return nil, fmt.Errorf("agent %s: unknown agent type %q", a.Name, doc.Data.Type)
		}
		if !a.Class.Valid() {
			return nil, fmt.Errorf("agent %s: unknown agent class %q", a.Name, doc.Data.Class)
		}
		if prev, dup := seen[a.Name]; dup {
			return nil, fmt.Errorf("agent %s defined twice (%s, %s)", a.Name, prev, doc.ID)
		}
		seen[a.Name] = doc.ID
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

func trimExtension(id string) string {
	ext := path.Ext(id)
	if ext == "" {
		return id
	}
	return strings.TrimSuffix(id, ext)
}
