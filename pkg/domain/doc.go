/*
Package domain contains the core model of the Chirality runtime.

It defines typed identifiers, the entity records (Project, Package, Deliverable,
Document, AgentSession), the deliverable and session lifecycle state machines, and
the write-scope guard that decides which filesystem paths a session may mutate.
The package performs no I/O of its own apart from the guard's path resolution,
following Hexagonal Architecture principles.

# Key Entities

  - Deliverable: the unit of production, moving Open -> Initialized -> (SemanticReady) -> InProgress <-> Checking -> Issued.
  - AgentSession: one agent invocation. Its AgentClass (Persona or Task) gates which SessionState moves are legal.
  - WriteScope: the closed set of write boundaries (WriteNone, DeliverableLocal, ToolRootOnly, RepoMetadataOnly).
  - Guard: validates a candidate path against a WriteScope before any write is delegated.

Errors are typed (InvalidStateTransitionError, WriteViolationError, ...) and wrap
package sentinels, so callers match kinds with errors.Is and read fields with errors.As.
*/
package domain
