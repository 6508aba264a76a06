package domain_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratedIDs(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{"project", func() string { return domain.NewProjectID().String() }, "proj:"},
		{"package", func() string { return domain.NewPackageID().String() }, "pkg:"},
		{"deliverable", func() string { return domain.NewDeliverableID().String() }, "del:"},
		{"document", func() string { return domain.NewDocumentID().String() }, "doc:"},
		{"session", func() string { return domain.NewSessionID().String() }, "session:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(map[string]bool)
			prev := ""
			for i := 0; i < 200; i++ {
				id := tt.gen()
				if !strings.HasPrefix(id, tt.prefix) {
					t.Fatalf("id %q lacks prefix %q", id, tt.prefix)
				}
				token := strings.TrimPrefix(id, tt.prefix)
				if len(token) != 26 {
					t.Fatalf("token %q has length %d, want 26", token, len(token))
				}
				if seen[id] {
					t.Fatalf("duplicate id %q", id)
				}
				seen[id] = true
				if prev != "" && id < prev {
					t.Fatalf("ids not time-sortable: %q after %q", id, prev)
				}
				prev = id
			}
		})
	}
}

func TestLegacyIDs(t *testing.T) {
	pkg, err := domain.LegacyPackageID(3)
	require.NoError(t, err)
	assert.Equal(t, domain.PackageID("PKG-003"), pkg)
	n, ok := pkg.LegacyNumber()
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	del, err := domain.LegacyDeliverableID(2, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverableID("DEL-02.01"), del)

	for _, num := range []int{-1, 0, 1000} {
		_, err := domain.LegacyPackageID(num)
		assert.ErrorIs(t, err, domain.ErrInvalidID, num)
	}
	for _, nums := range [][2]int{{0, 1}, {1, 0}, {-2, 1}, {100, 1}, {1, 100}} {
		_, err := domain.LegacyDeliverableID(nums[0], nums[1])
		assert.ErrorIs(t, err, domain.ErrInvalidID, nums)
	}

	_, ok = domain.NewPackageID().LegacyNumber()
	assert.False(t, ok)
}

func TestParseIDs(t *testing.T) {
	token := strings.TrimPrefix(domain.NewSessionID().String(), "session:")
	tests := []struct {
		name  string
		parse func(string) error
		valid []string
		bad   []string
	}{
		{
			"project",
			func(s string) error { _, err := domain.ParseProjectID(s); return err },
			[]string{"proj:" + token},
			[]string{"", "proj:", "proj:missing", "pkg:" + token, "proj:" + strings.ToLower(token), "proj:" + token + "0"},
		},
		{
			"package",
			func(s string) error { _, err := domain.ParsePackageID(s); return err },
			[]string{"pkg:" + token, "PKG-001", "PKG-999"},
			[]string{"PKG-000", "PKG-1", "PKG-0001", "PKG--01", "pkg:ILOU" + token[4:], "del:" + token},
		},
		{
			"deliverable",
			func(s string) error { _, err := domain.ParseDeliverableID(s); return err },
			[]string{"del:" + token, "DEL-01.01", "DEL-99.99"},
			[]string{"DEL-00.01", "DEL-01.00", "DEL-1.1", "DEL-01.001", "DEL-01-01", "../DEL-01.01"},
		},
		{
			"document",
			func(s string) error { _, err := domain.ParseDocumentID(s); return err },
			[]string{"doc:" + token},
			[]string{"doc:", "DOC-01", "doc:" + token[:25]},
		},
		{
			"session",
			func(s string) error { _, err := domain.ParseSessionID(s); return err },
			[]string{"session:" + token},
			[]string{"session:missing", "session:" + token + "/../x", token},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, s := range tt.valid {
				assert.NoError(t, tt.parse(s), s)
			}
			for _, s := range tt.bad {
				assert.ErrorIs(t, tt.parse(s), domain.ErrInvalidID, s)
			}
		})
	}
}

func TestIDs_UnmarshalJSON(t *testing.T) {
	var v struct {
		Session     domain.SessionID     `json:"session_id"`
		Deliverable domain.DeliverableID `json:"deliverable_id"`
		Project     domain.ProjectID     `json:"project_id"`
	}
	id := domain.NewSessionID()
	require.NoError(t, json.Unmarshal([]byte(`{"session_id":"`+id.String()+`","deliverable_id":"DEL-01.02","project_id":""}`), &v))
	assert.Equal(t, id, v.Session)
	assert.Equal(t, domain.DeliverableID("DEL-01.02"), v.Deliverable)
	assert.Empty(t, v.Project)

	err := json.Unmarshal([]byte(`{"deliverable_id":"DEL-01.02/../../etc"}`), &v)
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestContentHash(t *testing.T) {
	h := domain.HashBytes([]byte("hello"))
	want := "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if h.String() != want {
		t.Fatalf("HashBytes = %q, want %q", h, want)
	}
	if !h.Valid() {
		t.Error("expected valid hash")
	}
	for _, bad := range []domain.ContentHash{"", "sha256:abc", "md5:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		"sha256:2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824"} {
		if bad.Valid() {
			t.Errorf("%q reported valid", bad)
		}
	}
}

func TestActor(t *testing.T) {
	if got := domain.HumanActor("alice").String(); got != "HUMAN:alice" {
		t.Errorf("got %q", got)
	}
	if got := domain.SystemActor().String(); got != "SYSTEM:system" {
		t.Errorf("got %q", got)
	}
	if domain.AgentActor("x").IsHuman() {
		t.Error("agent reported human")
	}
	if err := domain.RequireHuman(domain.AgentActor("x"), "issue deliverable"); err == nil || err.Error() != "Human actor required for issue deliverable" {
		t.Errorf("unexpected error %v", err)
	}
	if err := domain.RequireHuman(domain.HumanActor("alice"), "issue deliverable"); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
