package domain_test

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_NoneDeniesEverything(t *testing.T) {
	for _, target := range []string{"/", "/project", "/project/PKG-01/DEL-01.01/Datasheet.md", "relative.md"} {
		decision := domain.ValidateWrite(domain.WriteNone{}, target)
		require.False(t, decision.Allowed, target)
		assert.Equal(t, "None", decision.Violation.Scope)
		assert.Equal(t, "Agent has no write permission", decision.Violation.Reason)
	}
}

func TestGuard_DeliverableLocal(t *testing.T) {
	scope := domain.DeliverableLocal{
		DeliverableID:   "DEL-01.01",
		DeliverablePath: "/project/PKG-01/DEL-01.01",
	}

	t.Run("inside", func(t *testing.T) {
		assert.True(t, domain.ValidateWrite(scope, "/project/PKG-01/DEL-01.01/Datasheet.md").Allowed)
		assert.True(t, domain.ValidateWrite(scope, "/project/PKG-01/DEL-01.01/sub/dir/notes.md").Allowed)
	})

	t.Run("sibling deliverable", func(t *testing.T) {
		err := domain.EnsureWriteAllowed(scope, "/project/PKG-01/DEL-01.02/Datasheet.md")
		require.ErrorIs(t, err, domain.ErrWriteViolation)

		var violation *domain.WriteViolationError
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, "DeliverableLocal(/project/PKG-01/DEL-01.01)", violation.Scope)
		assert.Contains(t, violation.Reason, "/project/PKG-01/DEL-01.01")
	})

	t.Run("shared name prefix is not containment", func(t *testing.T) {
		assert.False(t, domain.ValidateWrite(scope, "/project/PKG-01/DEL-01.01-copy/Datasheet.md").Allowed)
	})

	t.Run("dot-dot escape", func(t *testing.T) {
		assert.False(t, domain.ValidateWrite(scope, "/project/PKG-01/DEL-01.01/../../etc/passwd").Allowed)
	})

	t.Run("relative target", func(t *testing.T) {
		assert.False(t, domain.ValidateWrite(scope, "DEL-01.01/Datasheet.md").Allowed)
	})
}

func TestGuard_ToolRootOnly(t *testing.T) {
	scope := domain.ToolRootOnly{RootPath: "/tools/chirality"}
	assert.True(t, domain.ValidateWrite(scope, "/tools/chirality/out/report.md").Allowed)

	decision := domain.ValidateWrite(scope, "/tools/other/report.md")
	require.False(t, decision.Allowed)
	assert.Equal(t, "Path is outside tool root: /tools/chirality", decision.Violation.Reason)
	assert.Equal(t, "Write violation: cannot write to /tools/other/report.md with scope ToolRootOnly(/tools/chirality): Path is outside tool root: /tools/chirality",
		decision.Err().Error())
}

func TestGuard_RepoMetadataOnly(t *testing.T) {
	scope := domain.RepoMetadataOnly{AllowedFiles: []string{"/repo/.chirality/index.json", "/repo/README.md"}}

	assert.True(t, domain.ValidateWrite(scope, "/repo/README.md").Allowed)
	assert.True(t, domain.ValidateWrite(scope, "/repo/.chirality/index.json").Allowed)

	decision := domain.ValidateWrite(scope, "/repo/docs/README.md")
	require.False(t, decision.Allowed)
	assert.Equal(t, "RepoMetadataOnly", decision.Violation.Scope)
	assert.Equal(t, `Path is not in allowed metadata files: ["/repo/.chirality/index.json", "/repo/README.md"]`, decision.Violation.Reason)
}

func TestGuard_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	deliverable := filepath.Join(root, "DEL-01.01")
	require.NoError(t, os.MkdirAll(deliverable, 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(deliverable, "escape")))

	scope := domain.DeliverableLocal{DeliverableID: "DEL-01.01", DeliverablePath: deliverable}

	assert.True(t, domain.ValidateWrite(scope, filepath.Join(deliverable, "Datasheet.md")).Allowed)
	assert.False(t, domain.ValidateWrite(scope, filepath.Join(deliverable, "escape", "new.md")).Allowed,
		"a not-yet-existing file under a symlinked directory must resolve through the link")
}

func TestGuard_DanglingSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	root := t.TempDir()
	project := filepath.Join(root, "project")
	deliverable := filepath.Join(project, "PKG-01", "DEL-01.01")
	require.NoError(t, os.MkdirAll(deliverable, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(project, "outside"), 0o755))
	scope := domain.DeliverableLocal{DeliverableID: "DEL-01.01", DeliverablePath: deliverable}

	// Datasheet.md -> ../../outside/planted.md, which does not exist yet.
	planted := filepath.Join(deliverable, "Datasheet.md")
	require.NoError(t, os.Symlink(filepath.Join("..", "..", "outside", "planted.md"), planted))
	// Notes.md -> drafts/notes.md, a dangling link that stays inside the folder.
	require.NoError(t, os.Symlink(filepath.Join("drafts", "notes.md"), filepath.Join(deliverable, "Notes.md")))
	// a -> b -> a
	require.NoError(t, os.Symlink("loop-b", filepath.Join(deliverable, "loop-a")))
	require.NoError(t, os.Symlink("loop-a", filepath.Join(deliverable, "loop-b")))
	// gone -> /missing/dir, then a file below it.
	require.NoError(t, os.Symlink(filepath.Join(root, "missing", "dir"), filepath.Join(deliverable, "gone")))

	for _, policy := range []domain.ContainmentPolicy{domain.ContainmentFallback, domain.ContainmentFailClosed} {
		guard := domain.NewGuard(domain.WithContainmentPolicy(policy))
		t.Run(policy.String(), func(t *testing.T) {
			decision := guard.Validate(scope, planted)
			require.False(t, decision.Allowed)
			assert.ErrorIs(t, decision.Err(), domain.ErrWriteViolation)

			assert.True(t, guard.Validate(scope, filepath.Join(deliverable, "Notes.md")).Allowed)
			assert.False(t, guard.Validate(scope, filepath.Join(deliverable, "loop-a")).Allowed)
			assert.False(t, guard.Validate(scope, filepath.Join(deliverable, "gone", "new.md")).Allowed)
		})
	}
}

func TestGuard_Contains(t *testing.T) {
	guard := domain.NewGuard()
	assert.True(t, guard.Contains("/project", "/project/PKG-01/DEL-01.01"))
	assert.True(t, guard.Contains("/project", "/project"))
	assert.False(t, guard.Contains("/project", "/"))
	assert.False(t, guard.Contains("/project", "/project2"))
	assert.False(t, guard.Contains("/project", "/project/../etc"))
	assert.False(t, guard.Contains("/project", "relative"))
}

func TestGuard_FailClosed(t *testing.T) {
	unresolvable := func(string) (string, error) { return "", os.ErrPermission }
	scope := domain.ToolRootOnly{RootPath: "/tools/chirality"}

	fallback := domain.NewGuard(domain.WithPathResolver(unresolvable))
	assert.True(t, fallback.Validate(scope, "/tools/chirality/a.md").Allowed)

	closed := domain.NewGuard(domain.WithPathResolver(unresolvable), domain.WithContainmentPolicy(domain.ContainmentFailClosed))
	assert.False(t, closed.Validate(scope, "/tools/chirality/a.md").Allowed)

	// Missing paths still resolve through an existing ancestor under fail-closed.
	strict := domain.NewGuard(domain.WithContainmentPolicy(domain.ContainmentFailClosed))
	root := t.TempDir()
	assert.NoError(t, strict.EnsureAllowed(domain.ToolRootOnly{RootPath: root}, filepath.Join(root, "new", "file.md")))
}

func TestGuard_UndeclaredScope(t *testing.T) {
	assert.False(t, domain.ValidateWrite(nil, "/anything").Allowed)
}

func TestGuard_ConcurrentUse(t *testing.T) {
	guard := domain.NewGuard()
	scope := domain.DeliverableLocal{DeliverableID: "DEL-01.01", DeliverablePath: "/project/DEL-01.01"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inside := guard.Validate(scope, "/project/DEL-01.01/Datasheet.md")
			outside := guard.Validate(scope, "/project/DEL-01.02/Datasheet.md")
			if !inside.Allowed || outside.Allowed {
				t.Errorf("goroutine %d: inconsistent decisions", i)
			}
		}(i)
	}
	wg.Wait()
}

func TestParseContainmentPolicy(t *testing.T) {
	p, err := domain.ParseContainmentPolicy("fail_closed")
	require.NoError(t, err)
	assert.Equal(t, domain.ContainmentFailClosed, p)

	p, err = domain.ParseContainmentPolicy("")
	require.NoError(t, err)
	assert.Equal(t, domain.ContainmentFallback, p)

	_, err = domain.ParseContainmentPolicy("sometimes")
	assert.Error(t, err)
}
