/*
Package chirality is a runtime for agent-assisted engineering deliverables.

A Project is split into Packages, and each Package owns Deliverables. A Deliverable
is a folder of four core documents (Datasheet, Specification, Guidance, Procedure)
plus underscore-prefixed metadata files. Deliverables, documents and agent sessions
each move through a fixed transition table, and every write an agent makes is checked
against the session's declared write scope before it touches the workspace.

# Architecture

The domain core (pkg/domain, pkg/brief) is pure: state machines, typed ids, the
write guard and brief validation. Everything with side effects sits behind a port
(pkg/ports) with interchangeable adapters:

  - Repositories: memory, file (atomic JSON), redis
  - Blob store: memory, file (sha256/<2>/<hex>), sqlite
  - Workspace: memory, filesystem with fsnotify watching
  - Status ledger: _STATUS.md frontmatter documents via loam
  - Version control: git CLI
  - Agent executor: scripted (memory) or the Anthropic Messages API
  - Identity: HS256 JWT

The orchestrator serializes every mutation per entity id, so concurrent callers
never interleave a load-modify-save on the same deliverable or session.

# Usage

	cfg, err := chirality.LoadConfig("")
	if err != nil {
		log.Fatal(err)
	}
	rt, err := chirality.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close()

	ctx := context.Background()
	p, _ := rt.CreateProject(ctx, chirality.CreateProjectRequest{Name: "Plant", WorkspacePath: "/work/plant"})

The same operations are served over HTTP (chirality serve), MCP (chirality mcp)
and the CLI.
*/
package chirality
