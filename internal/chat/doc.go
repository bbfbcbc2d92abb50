// ABOUTME: Package chat drives tool-augmented conversations.
// ABOUTME: One driver per session, bound to that session's tool connection.

// Package chat resolves user messages into replies.
//
// The driver asks the model to respond with the session's MCP tools
// attached, executes any requested tool calls in order, and folds both
// plain text and post-tool summaries into a single newline-joined reply.
// Conversations are stateless per turn: the model sees only the current
// message plus tool exchange, never prior turns.
package chat
