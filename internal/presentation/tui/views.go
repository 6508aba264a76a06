package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// escape keeps table cells on one row.
func escape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func short(h domain.ContentHash) string {
	if hex := h.Hex(); len(hex) > 12 {
		return hex[:12]
	}
	return h.Hex()
}

// DeliverableMarkdown describes one deliverable and its documents.
func DeliverableMarkdown(d *domain.Deliverable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n\n", d.ID, escape(d.Label))
	fmt.Fprintf(&b, "- **State:** %s\n", d.State)
	fmt.Fprintf(&b, "- **Package:** %s\n", d.PackageID)
	fmt.Fprintf(&b, "- **Folder:** `%s`\n", d.FolderPath)
	if d.Type != "" {
		fmt.Fprintf(&b, "- **Type:** %s\n", d.Type)
	}
	if d.Discipline != "" {
		fmt.Fprintf(&b, "- **Discipline:** %s\n", d.Discipline)
	}
	if d.ResponsibleParty != "" {
		fmt.Fprintf(&b, "- **Responsible:** %s\n", d.ResponsibleParty)
	}
	if next := d.State.NextStates(); len(next) > 0 {
		names := make([]string, len(next))
		for i, s := range next {
			names[i] = string(s)
		}
		fmt.Fprintf(&b, "- **Next:** %s\n", strings.Join(names, ", "))
	}

	b.WriteString("\n## Documents\n\n")
	if len(d.Documents) == 0 {
		b.WriteString("_none registered_\n")
	} else {
		b.WriteString("| Type | Path |\n|---|---|\n")
		for _, ref := range d.Documents {
			fmt.Fprintf(&b, "| %s | `%s` |\n", ref.Type, ref.Path)
		}
	}
	if missing := d.MissingCoreDocuments(); len(missing) > 0 && len(d.Documents) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		fmt.Fprintf(&b, "\nMissing core documents: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}

// StatusBoard tabulates deliverables with a per-state tally.
func StatusBoard(title string, deliverables []domain.Deliverable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escape(title))
	if len(deliverables) == 0 {
		b.WriteString("_no deliverables_\n")
		return b.String()
	}

	b.WriteString("| ID | Label | State | Documents |\n|---|---|---|---|\n")
	counts := make(map[domain.DeliverableState]int)
	for _, d := range deliverables {
		counts[d.State]++
		fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", d.ID, escape(d.Label), d.State, len(d.Documents))
	}

	b.WriteString("\n")
	var parts []string
	for _, st := range domain.DeliverableStates {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", st, n))
		}
	}
	fmt.Fprintf(&b, "**Total:** %d (%s)\n", len(deliverables), strings.Join(parts, ", "))
	return b.String()
}

// SessionMarkdown describes one agent session.
func SessionMarkdown(s *domain.AgentSession) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.ID)
	fmt.Fprintf(&b, "- **Agent:** %s (%s, %s)\n", s.AgentName, s.AgentClass, s.AgentType)
	fmt.Fprintf(&b, "- **State:** %s\n", s.State)
	if s.Scope != nil {
		fmt.Fprintf(&b, "- **Scope:** %s\n", s.Scope)
	}
	if s.WriteScope != nil {
		fmt.Fprintf(&b, "- **Write scope:** %s\n", s.WriteScope)
	}
	fmt.Fprintf(&b, "- **Started:** %s by %s\n", s.StartedAt.Format(time.RFC3339), s.StartedBy)
	if s.CompletedAt != nil {
		fmt.Fprintf(&b, "- **Finished:** %s\n", s.CompletedAt.Format(time.RFC3339))
	}
	if s.Brief != nil {
		fmt.Fprintf(&b, "\n## Brief\n\n%s\n", s.Brief.TaskDefinition)
	}
	if len(s.Outputs) > 0 {
		b.WriteString("\n## Outputs\n\n| Type | Path | Hash |\n|---|---|---|\n")
		for _, o := range s.Outputs {
			fmt.Fprintf(&b, "| %s | `%s` | %s |\n", o.Type, o.Path, short(o.ContentHash))
		}
	}
	return b.String()
}

// SessionTable lists sessions one per row.
func SessionTable(sessions []domain.AgentSession) string {
	if len(sessions) == 0 {
		return "_no sessions_\n"
	}
	var b strings.Builder
	b.WriteString("| ID | Agent | Class | State | Started |\n|---|---|---|---|---|\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			s.ID, escape(s.AgentName), s.AgentClass, s.State, s.StartedAt.Format(time.RFC3339))
	}
	return b.String()
}
