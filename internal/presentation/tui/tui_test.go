package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/stretchr/testify/assert"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

func sampleDeliverable() *domain.Deliverable {
	d := domain.NewDeliverable("PKG-001", "Pump | Datasheet", "/ws/PKG-001_Pumps/DEL-01.01_Pump",
		domain.WithLegacyDeliverableNumber(1, 1), domain.WithDiscipline("Mechanical"))
	return &d
}

func TestDeliverableMarkdown(t *testing.T) {
	md := DeliverableMarkdown(sampleDeliverable())

	assert.Contains(t, md, "# DEL-01.01 Pump \\| Datasheet")
	assert.Contains(t, md, "- **State:** OPEN")
	assert.Contains(t, md, "- **Next:** INITIALIZED")
	assert.Contains(t, md, "- **Discipline:** Mechanical")
	assert.Contains(t, md, "_none registered_")
}

func TestStatusBoard(t *testing.T) {
	a := *sampleDeliverable()
	b := *sampleDeliverable()
	b.State = domain.DeliverableInProgress

	md := StatusBoard("Pumps", []domain.Deliverable{a, b})
	assert.Contains(t, md, "| ID | Label | State | Documents |")
	assert.Contains(t, md, "**Total:** 2 (OPEN: 1, IN_PROGRESS: 1)")

	assert.Contains(t, StatusBoard("Empty", nil), "_no deliverables_")
}

func TestSessionMarkdown(t *testing.T) {
	s := domain.NewTaskSession("writer", domain.SessionBrief{TaskDefinition: "Draft the datasheet"},
		domain.DeliverableScope{DeliverableID: "DEL-01.01"}, domain.WriteNone{}, domain.HumanActor("alice"))
	s.Outputs = append(s.Outputs, domain.SessionOutput{
		Type: domain.OutputDocument, Path: "/ws/a.md", ContentHash: domain.HashBytes([]byte("a")),
	})

	md := SessionMarkdown(&s)
	assert.Contains(t, md, "- **Agent:** writer (TASK, SPECIALIST)")
	assert.Contains(t, md, "Draft the datasheet")
	assert.Contains(t, md, "| DOCUMENT | `/ws/a.md` | "+domain.HashBytes([]byte("a")).Hex()[:12]+" |")

	table := SessionTable([]domain.AgentSession{s})
	assert.Contains(t, table, s.StartedAt.Format(time.RFC3339))
	assert.Equal(t, "_no sessions_\n", SessionTable(nil))
}

func TestRenderer(t *testing.T) {
	plain := NewRenderer(&bytes.Buffer{})
	assert.False(t, plain.Styled())
	assert.Equal(t, "# Title\n", plain.Render("# Title\n"))

	styled := NewStyledRenderer(80, glamour.WithStandardStyle("notty"))
	assert.True(t, styled.Styled())
	assert.Contains(t, styled.Render("# Title\n\nbody text\n"), "body text")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|__/")
}
