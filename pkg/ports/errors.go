package ports

import (
	"errors"
	"fmt"
	"strings"
)

// Collaborator failure kinds. Adapters wrap these so callers can match with errors.Is.
var (
	ErrFileNotFound           = errors.New("file not found")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrIO                     = errors.New("io error")
	ErrGit                    = errors.New("git error")
	ErrBranchNotFound         = errors.New("branch not found")
	ErrMergeConflict          = errors.New("merge conflict")
	ErrBlobNotFound           = errors.New("blob not found")
	ErrStorage                = errors.New("storage error")
	ErrAgentExecution         = errors.New("agent execution failed")
	ErrAgentNotFound          = errors.New("agent not found")
	ErrSessionNotFound        = errors.New("persona session not found")
	ErrInvalidToken           = errors.New("invalid token")
	ErrAuthenticationRequired = errors.New("authentication required")
)

// MergeConflictError lists the files a merge could not reconcile.
type MergeConflictError struct {
	Files []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict in: %s", strings.Join(e.Files, ", "))
}

func (e *MergeConflictError) Unwrap() error { return ErrMergeConflict }
