// ABOUTME: Package session tracks live chat sessions and gates access to them.
// ABOUTME: Idle sessions are swept on a timer unless a lease is outstanding.

// Package session owns the lifecycle of established chat sessions.
//
// Each session binds one MCP tool connection under a session ID. The
// registry evicts sessions that exceed the idle timeout, deferring eviction
// while a lease is held (a reply in flight). The gate sits in front of
// every chat operation, sorting failures into "connect first", "session
// gone", and "credential no longer valid".
package session
