/*
Package ports defines the driven ports (interfaces) of the Chirality runtime.

These interfaces decouple the domain and the orchestrator from storage, filesystem,
version control and agent execution technologies.

# Key Interfaces

  - Repository[T]: persists entity records (projects, packages, deliverables, documents, sessions).
  - Workspace: filesystem I/O, always preceded by a write-scope check.
  - VersionControl: git operations attributed to an Actor.
  - BlobStore: content-addressed storage keyed by domain.ContentHash.
  - AgentExecutor: runs Task sessions and drives Persona conversations.
  - Identity: validates tokens into Actors.
  - DistributedLocker: serializes per-entity transitions across processes.

Contract suites (RunRepositoryContract, RunBlobStoreContract, RunWorkspaceContract)
verify that an adapter honors these interfaces.
*/
package ports
