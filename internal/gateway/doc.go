// Package gateway orchestrates the chatgate server components.
//
// The Gateway struct owns every long-lived piece: the SQLite transcript
// store, the session registry and its sweeper, the upstream authenticator,
// the model client, and the HTTP server carrying the web UI. Run starts
// the listener (plain TCP or a tsnet node, optionally with HTTPS or
// funnel) and blocks until the context is canceled; Shutdown tears
// everything down in order, disconnecting live MCP sessions so the tool
// server can reclaim them.
package gateway
