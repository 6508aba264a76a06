// Package git implements ports.VersionControl by shelling out to the git CLI.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// Repo runs git inside Dir.
type Repo struct {
	Dir    string
	binary string
}

// Option configures a Repo.
type Option func(*Repo)

// WithBinary overrides the git executable (default "git" from PATH).
func WithBinary(path string) Option {
	return func(r *Repo) {
		r.binary = path
	}
}

// New creates a Repo for an existing working tree.
func New(dir string, opts ...Option) *Repo {
	r := &Repo{Dir: dir, binary: "git"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Available reports whether the git binary can be found.
func (r *Repo) Available() bool {
	_, err := exec.LookPath(r.binary)
	return err == nil
}

// Init creates the repository if Dir is not one yet, with main as the initial branch.
func (r *Repo) Init(ctx context.Context) error {
	if _, err := r.run(ctx, nil, "rev-parse", "--git-dir"); err == nil {
		return nil
	}
	if _, err := r.run(ctx, nil, "init", "--quiet"); err != nil {
		return err
	}
	_, err := r.run(ctx, nil, "symbolic-ref", "HEAD", "refs/heads/main")
	return err
}

// identityEnv attributes commits to actor for both author and committer.
func identityEnv(actor domain.Actor) []string {
	name := actor.ID
	email := fmt.Sprintf("%s@%s.chirality.local", actor.ID, strings.ToLower(string(actor.Kind)))
	return []string{
		"GIT_AUTHOR_NAME=" + name,
		"GIT_AUTHOR_EMAIL=" + email,
		"GIT_COMMITTER_NAME=" + name,
		"GIT_COMMITTER_EMAIL=" + email,
	}
}

type gitError struct {
	args   []string
	stderr string
	err    error
}

func (e *gitError) Error() string {
	msg := strings.TrimSpace(e.stderr)
	if msg == "" {
		msg = e.err.Error()
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.args, " "), msg)
}

func (e *gitError) Unwrap() error { return ports.ErrGit }

func (r *Repo) run(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &gitError{args: args, stderr: stderr.String(), err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (r *Repo) branchExists(ctx context.Context, name string) bool {
	_, err := r.run(ctx, nil, "rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

func (r *Repo) Stage(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := r.run(ctx, nil, append([]string{"add", "--"}, paths...)...)
	return err
}

func (r *Repo) StageAll(ctx context.Context) error {
	_, err := r.run(ctx, nil, "add", "--all")
	return err
}

func (r *Repo) Commit(ctx context.Context, message string, author domain.Actor) (domain.CommitHash, error) {
	if _, err := r.run(ctx, identityEnv(author), "commit", "--quiet", "-m", message); err != nil {
		return "", err
	}
	return r.Head(ctx)
}

func (r *Repo) Head(ctx context.Context) (domain.CommitHash, error) {
	out, err := r.run(ctx, nil, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return domain.CommitHash(out), nil
}

func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, nil, "symbolic-ref", "--short", "HEAD")
}

func (r *Repo) CreateBranch(ctx context.Context, name string) error {
	_, err := r.run(ctx, nil, "branch", name)
	return err
}

func (r *Repo) Checkout(ctx context.Context, name string) error {
	if !r.branchExists(ctx, name) {
		return fmt.Errorf("%w: %s", ports.ErrBranchNotFound, name)
	}
	_, err := r.run(ctx, nil, "checkout", "--quiet", name)
	return err
}

// Merge performs a no-fast-forward merge attributed to the system actor.
// On conflict the merge is aborted and the conflicting files are reported.
func (r *Repo) Merge(ctx context.Context, branch string) (domain.CommitHash, error) {
	if !r.branchExists(ctx, branch) {
		return "", fmt.Errorf("%w: %s", ports.ErrBranchNotFound, branch)
	}

	_, err := r.run(ctx, identityEnv(domain.SystemActor()), "merge", "--no-ff", "--no-edit", branch)
	if err != nil {
		out, diffErr := r.run(ctx, nil, "diff", "--name-only", "--diff-filter=U")
		if diffErr == nil && out != "" {
			_, _ = r.run(ctx, nil, "merge", "--abort")
			return "", &ports.MergeConflictError{Files: strings.Split(out, "\n")}
		}
		return "", err
	}
	return r.Head(ctx)
}

func (r *Repo) DeleteBranch(ctx context.Context, name string) error {
	if !r.branchExists(ctx, name) {
		return fmt.Errorf("%w: %s", ports.ErrBranchNotFound, name)
	}
	_, err := r.run(ctx, nil, "branch", "-D", name)
	return err
}

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

func (r *Repo) Log(ctx context.Context, path string, limit int) ([]ports.CommitInfo, error) {
	args := []string{"log", "--format=%H" + fieldSep + "%s" + fieldSep + "%an" + fieldSep + "%ae" + fieldSep + "%aI" + recordSep}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}
	if path != "" {
		args = append(args, "--", path)
	}

	out, err := r.run(ctx, nil, args...)
	if err != nil {
		return nil, err
	}

	var commits []ports.CommitInfo
	for _, rec := range strings.Split(out, recordSep) {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		fields := strings.Split(rec, fieldSep)
		if len(fields) != 5 {
			return nil, fmt.Errorf("%w: unexpected log record %q", ports.ErrGit, rec)
		}
		ts, err := time.Parse(time.RFC3339, fields[4])
		if err != nil {
			return nil, fmt.Errorf("%w: bad commit timestamp: %v", ports.ErrGit, err)
		}
		commits = append(commits, ports.CommitInfo{
			Hash:        domain.CommitHash(fields[0]),
			Message:     fields[1],
			AuthorName:  fields[2],
			AuthorEmail: fields[3],
			Timestamp:   ts,
		})
	}
	return commits, nil
}

func (r *Repo) Tag(ctx context.Context, name, message string) error {
	if message == "" {
		_, err := r.run(ctx, nil, "tag", name)
		return err
	}
	_, err := r.run(ctx, identityEnv(domain.SystemActor()), "tag", "-a", name, "-m", message)
	return err
}

// IsGitError reports whether err came from a failed git invocation.
func IsGitError(err error) bool {
	var ge *gitError
	return errors.As(err, &ge)
}
