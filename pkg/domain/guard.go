package domain

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ContainmentPolicy decides what happens when a path cannot be canonicalized.
type ContainmentPolicy int

const (
	// ContainmentFallback compares the lexically cleaned paths when canonicalization fails.
	ContainmentFallback ContainmentPolicy = iota
	// ContainmentFailClosed denies when canonicalization fails.
	ContainmentFailClosed
)

// ParseContainmentPolicy maps "fallback" and "fail_closed" to a policy.
func ParseContainmentPolicy(s string) (ContainmentPolicy, error) {
	switch strings.ToLower(s) {
	case "", "fallback":
		return ContainmentFallback, nil
	case "fail_closed", "fail-closed", "failclosed":
		return ContainmentFailClosed, nil
	}
	return ContainmentFallback, fmt.Errorf("unknown containment policy %q", s)
}

func (p ContainmentPolicy) String() string {
	if p == ContainmentFailClosed {
		return "fail_closed"
	}
	return "fallback"
}

// WriteDecision is the verdict of a write-scope check.
type WriteDecision struct {
	Allowed   bool
	Violation *WriteViolationError
}

// Err returns the violation as an error, or nil when allowed.
func (d WriteDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return d.Violation
}

// Guard checks candidate write paths against a WriteScope.
// Its configuration is fixed at construction, so a Guard is safe for concurrent use.
type Guard struct {
	policy   ContainmentPolicy
	resolve  func(string) (string, error)
	readlink func(string) (string, error)
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithContainmentPolicy selects the behavior for paths that cannot be canonicalized.
func WithContainmentPolicy(p ContainmentPolicy) GuardOption {
	return func(g *Guard) { g.policy = p }
}

// WithPathResolver replaces the symlink resolver (filepath.EvalSymlinks by default).
// The resolver must return an fs.ErrNotExist-wrapping error for missing paths.
func WithPathResolver(fn func(string) (string, error)) GuardOption {
	return func(g *Guard) { g.resolve = fn }
}

// NewGuard creates a Guard.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{
		policy:   ContainmentFallback,
		resolve:  filepath.EvalSymlinks,
		readlink: os.Readlink,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var defaultGuard = NewGuard()

// ValidateWrite checks target against scope with the default Guard.
func ValidateWrite(scope WriteScope, target string) WriteDecision {
	return defaultGuard.Validate(scope, target)
}

// EnsureWriteAllowed returns a *WriteViolationError when the default Guard denies the write.
func EnsureWriteAllowed(scope WriteScope, target string) error {
	return defaultGuard.Validate(scope, target).Err()
}

// EnsureAllowed returns a *WriteViolationError when the write is denied.
func (g *Guard) EnsureAllowed(scope WriteScope, target string) error {
	return g.Validate(scope, target).Err()
}

// Validate decides whether target may be written under scope.
func (g *Guard) Validate(scope WriteScope, target string) WriteDecision {
	switch s := scope.(type) {
	case WriteNone:
		return deny(target, s.String(), "Agent has no write permission")

	case DeliverableLocal:
		if !filepath.IsAbs(target) {
			return deny(target, s.String(), "Target path must be absolute")
		}
		if g.within(target, s.DeliverablePath) {
			return allow()
		}
		return deny(target, s.String(), fmt.Sprintf("Path is outside deliverable folder: %s", s.DeliverablePath))

	case ToolRootOnly:
		if !filepath.IsAbs(target) {
			return deny(target, s.String(), "Target path must be absolute")
		}
		if g.within(target, s.RootPath) {
			return allow()
		}
		return deny(target, s.String(), fmt.Sprintf("Path is outside tool root: %s", s.RootPath))

	case RepoMetadataOnly:
		clean := filepath.Clean(target)
		for _, f := range s.AllowedFiles {
			if filepath.Clean(f) == clean {
				return allow()
			}
		}
		return deny(target, s.String(), fmt.Sprintf("Path is not in allowed metadata files: %s", quoteList(s.AllowedFiles)))

	case nil:
		return deny(target, "Undeclared", "Session declares no write scope")

	default:
		return deny(target, scope.String(), fmt.Sprintf("Unsupported write scope %T", scope))
	}
}

// maxLinkHops bounds how many dangling links canonical follows before giving up.
const maxLinkHops = 40

// errUnresolvableLink marks a symlink whose destination cannot be determined.
// Such paths are denied under every policy.
var errUnresolvableLink = errors.New("unresolvable symlink")

// Contains reports whether the absolute path target lies inside root, resolving
// symlinks the same way Validate does.
func (g *Guard) Contains(root, target string) bool {
	if !filepath.IsAbs(root) || !filepath.IsAbs(target) {
		return false
	}
	return g.within(target, root)
}

// within reports whether target lies inside root, component-wise.
func (g *Guard) within(target, root string) bool {
	t := filepath.Clean(target)
	r := filepath.Clean(root)

	ct, errT := g.canonical(t)
	cr, errR := g.canonical(r)
	if errT == nil && errR == nil {
		return hasPathPrefix(ct, cr)
	}
	if g.policy == ContainmentFailClosed || errors.Is(errT, errUnresolvableLink) {
		return false
	}
	return hasPathPrefix(t, r)
}

// canonical resolves symlinks in p. A path that does not exist yet is resolved
// through its nearest existing ancestor, with the missing tail appended. A
// missing component that is itself a dangling symlink is followed to its
// destination, so a write through it is judged by where it would land.
func (g *Guard) canonical(p string) (string, error) {
	if !filepath.IsAbs(p) {
		return "", fmt.Errorf("path %q is not absolute", p)
	}
	var tail []string
	current := p
	hops := 0
	for {
		resolved, err := g.resolve(current)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		dest, linkErr := g.readlink(current)
		if linkErr == nil {
			if !errors.Is(err, fs.ErrNotExist) || hops >= maxLinkHops {
				return "", fmt.Errorf("%w: %s", errUnresolvableLink, current)
			}
			hops++
			if !filepath.IsAbs(dest) {
				dest = filepath.Join(filepath.Dir(current), dest)
			}
			for i := len(tail) - 1; i >= 0; i-- {
				dest = filepath.Join(dest, tail[i])
			}
			current = filepath.Clean(dest)
			tail = tail[:0]
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		tail = append(tail, filepath.Base(current))
		current = parent
	}
}

func hasPathPrefix(p, root string) bool {
	if p == root {
		return true
	}
	if strings.HasSuffix(root, string(filepath.Separator)) {
		return strings.HasPrefix(p, root)
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func allow() WriteDecision { return WriteDecision{Allowed: true} }

func deny(target, scope, reason string) WriteDecision {
	return WriteDecision{Violation: &WriteViolationError{TargetPath: target, Scope: scope, Reason: reason}}
}
