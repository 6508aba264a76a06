/*
Package session serializes entity mutations and persists agent sessions.

The domain state machines do not guard against two concurrent transitions of the
same entity. Manager provides that serialization: a reference-counted mutex per
entity key inside one process, optionally backed by a ports.DistributedLocker
when several processes share a workspace.
*/
package session
