package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sgttomas/chirality-runtime/internal/adapters/file"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure the adapters implement their ports.
var (
	_ ports.Repository[domain.Deliverable] = (*file.Store[domain.Deliverable])(nil)
	_ ports.Workspace                      = (*file.Workspace)(nil)
	_ ports.Watchable                      = (*file.Workspace)(nil)
	_ ports.BlobStore                      = (*file.BlobStore)(nil)
)

func TestStore_Contract(t *testing.T) {
	store := file.New[domain.Deliverable]("Deliverable", t.TempDir())
	ports.RunRepositoryContract(t, store, func() (string, *domain.Deliverable) {
		d := domain.NewDeliverable("PKG-001", "Pump", "/ws/PKG-001_Pumps/DEL-01.01_Pump",
			domain.WithDiscipline("Mechanical"))
		return d.ID.String(), &d
	})
}

func TestStore_TypedIDsRoundTripThroughFileNames(t *testing.T) {
	dir := t.TempDir()
	store := file.New[domain.AgentSession]("AgentSession", dir)
	ctx := context.Background()

	s := domain.NewPersonaSession("PREPARATION", domain.AgentManager,
		domain.ProjectScope{ProjectID: domain.NewProjectID()}, nil, domain.HumanActor("alice"))
	require.NoError(t, store.Save(ctx, s.ID.String(), &s))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID.String()}, ids)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not survive a save")
	assert.NotContains(t, entries[0].Name(), ":")
}

func TestStore_DefaultPath(t *testing.T) {
	store := file.New[domain.Project]("Project", "")
	assert.Equal(t, filepath.Join(".chirality", "project"), store.BasePath)
}

func TestWorkspace_Contract(t *testing.T) {
	root := t.TempDir()
	ports.RunWorkspaceContract(t, file.NewWorkspace(root), root)
}

func TestWorkspace_ErrorClassification(t *testing.T) {
	root := t.TempDir()
	ws := file.NewWorkspace(root)
	ctx := context.Background()

	_, err := ws.ListDir(ctx, filepath.Join(root, "nope"))
	assert.ErrorIs(t, err, ports.ErrFileNotFound)

	err = ws.Delete(ctx, filepath.Join(root, "nope.md"))
	assert.ErrorIs(t, err, ports.ErrFileNotFound)

	ok, err := ws.Exists(ctx, filepath.Join(root, "nope.md"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorkspace_Watch(t *testing.T) {
	root := t.TempDir()
	ws := file.NewWorkspace(root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := ws.Watch(ctx)
	require.NoError(t, err)

	target := filepath.Join(root, "Datasheet.md")
	_, err = ws.Write(ctx, target, []byte("# Pump"))
	require.NoError(t, err)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Path == target {
				assert.Contains(t, []ports.FsChangeType{ports.FsCreated, ports.FsModified}, evt.ChangeType)
				cancel()
				for range events {
				}
				return
			}
		case <-timeout:
			t.Fatal("no change event for written file")
		}
	}
}

func TestBlobStore_Contract(t *testing.T) {
	ports.RunBlobStoreContract(t, file.NewBlobStore(t.TempDir()))
}

func TestBlobStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.NewBlobStore(dir)

	hash, err := store.Store(context.Background(), []byte("datasheet"))
	require.NoError(t, err)

	hex := hash.Hex()
	_, err = os.Stat(filepath.Join(dir, "sha256", hex[:2], hex))
	assert.NoError(t, err)

	_, err = store.Retrieve(context.Background(), "md5:abc")
	assert.ErrorIs(t, err, ports.ErrStorage)
}
