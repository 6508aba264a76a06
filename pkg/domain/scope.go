package domain

import (
	"encoding/json"
	"fmt"
)

// SessionScope is the entity an AgentSession works against.
// The variant set is closed: ProjectScope, PackageScope and DeliverableScope.
type SessionScope interface {
	fmt.Stringer
	isSessionScope()
}

// Session scope tags.
const (
	ScopeProject     = "PROJECT"
	ScopePackage     = "PACKAGE"
	ScopeDeliverable = "DELIVERABLE"
)

// ProjectScope targets a whole project.
type ProjectScope struct {
	ProjectID ProjectID `json:"project_id"`
}

// PackageScope targets one package.
type PackageScope struct {
	PackageID PackageID `json:"package_id"`
}

// DeliverableScope targets one deliverable.
type DeliverableScope struct {
	DeliverableID DeliverableID `json:"deliverable_id"`
}

func (ProjectScope) isSessionScope()     {}
func (PackageScope) isSessionScope()     {}
func (DeliverableScope) isSessionScope() {}

func (s ProjectScope) String() string     { return fmt.Sprintf("Project(%s)", s.ProjectID) }
func (s PackageScope) String() string     { return fmt.Sprintf("Package(%s)", s.PackageID) }
func (s DeliverableScope) String() string { return fmt.Sprintf("Deliverable(%s)", s.DeliverableID) }

func (s ProjectScope) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"type": ScopeProject, "project_id": string(s.ProjectID)})
}

func (s PackageScope) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"type": ScopePackage, "package_id": string(s.PackageID)})
}

func (s DeliverableScope) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"type": ScopeDeliverable, "deliverable_id": string(s.DeliverableID)})
}

// WriteScope is the declared set of paths a session may mutate.
// The variant set is closed: WriteNone, DeliverableLocal, ToolRootOnly and RepoMetadataOnly.
type WriteScope interface {
	fmt.Stringer
	isWriteScope()
}

// Write scope tags.
const (
	WriteScopeNone             = "NONE"
	WriteScopeDeliverableLocal = "DELIVERABLE_LOCAL"
	WriteScopeToolRootOnly     = "TOOL_ROOT_ONLY"
	WriteScopeRepoMetadataOnly = "REPO_METADATA_ONLY"
)

// WriteNone grants no write access at all.
type WriteNone struct{}

// DeliverableLocal confines writes to a deliverable's folder.
type DeliverableLocal struct {
	DeliverableID   DeliverableID `json:"deliverable_id"`
	DeliverablePath string        `json:"deliverable_path"`
}

// ToolRootOnly confines writes to a tool's root directory.
type ToolRootOnly struct {
	RootPath string `json:"root_path"`
}

// RepoMetadataOnly permits writes to an explicit list of files.
type RepoMetadataOnly struct {
	AllowedFiles []string `json:"allowed_files"`
}

func (WriteNone) isWriteScope()        {}
func (DeliverableLocal) isWriteScope() {}
func (ToolRootOnly) isWriteScope()     {}
func (RepoMetadataOnly) isWriteScope() {}

func (WriteNone) String() string { return "None" }
func (s DeliverableLocal) String() string {
	return fmt.Sprintf("DeliverableLocal(%s)", s.DeliverablePath)
}
func (s ToolRootOnly) String() string   { return fmt.Sprintf("ToolRootOnly(%s)", s.RootPath) }
func (RepoMetadataOnly) String() string { return "RepoMetadataOnly" }

func (WriteNone) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"type": WriteScopeNone})
}

func (s DeliverableLocal) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"type":             WriteScopeDeliverableLocal,
		"deliverable_id":   string(s.DeliverableID),
		"deliverable_path": s.DeliverablePath,
	})
}

func (s ToolRootOnly) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"type": WriteScopeToolRootOnly, "root_path": s.RootPath})
}

func (s RepoMetadataOnly) MarshalJSON() ([]byte, error) {
	files := s.AllowedFiles
	if files == nil {
		files = []string{}
	}
	return json.Marshal(map[string]any{"type": WriteScopeRepoMetadataOnly, "allowed_files": files})
}

// scopeEnvelope is the union of every variant's fields, used for decoding.
type scopeEnvelope struct {
	Type            string        `json:"type"`
	ProjectID       ProjectID     `json:"project_id"`
	PackageID       PackageID     `json:"package_id"`
	DeliverableID   DeliverableID `json:"deliverable_id"`
	DeliverablePath string        `json:"deliverable_path"`
	RootPath        string        `json:"root_path"`
	AllowedFiles    []string      `json:"allowed_files"`
}

// DecodeSessionScope decodes a tagged session scope document.
func DecodeSessionScope(data []byte) (SessionScope, error) {
	var env scopeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode session scope: %w", err)
	}
	switch env.Type {
	case ScopeProject:
		return ProjectScope{ProjectID: env.ProjectID}, nil
	case ScopePackage:
		return PackageScope{PackageID: env.PackageID}, nil
	case ScopeDeliverable:
		return DeliverableScope{DeliverableID: env.DeliverableID}, nil
	default:
		return nil, fmt.Errorf("unknown session scope type %q", env.Type)
	}
}

// DecodeWriteScope decodes a tagged write scope document.
func DecodeWriteScope(data []byte) (WriteScope, error) {
	var env scopeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode write scope: %w", err)
	}
	switch env.Type {
	case WriteScopeNone:
		return WriteNone{}, nil
	case WriteScopeDeliverableLocal:
		return DeliverableLocal{DeliverableID: env.DeliverableID, DeliverablePath: env.DeliverablePath}, nil
	case WriteScopeToolRootOnly:
		return ToolRootOnly{RootPath: env.RootPath}, nil
	case WriteScopeRepoMetadataOnly:
		files := env.AllowedFiles
		if files == nil {
			files = []string{}
		}
		return RepoMetadataOnly{AllowedFiles: files}, nil
	default:
		return nil, fmt.Errorf("unknown write scope type %q", env.Type)
	}
}
