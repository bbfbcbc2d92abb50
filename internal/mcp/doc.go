// Package mcp implements the client side of the Model Context Protocol
// Streamable HTTP transport.
//
// # Overview
//
// A Client owns one logical session with a tool server: the initialize
// handshake, session-id negotiation, tool discovery, tool invocation, and
// the standalone server-sent event stream. The wire protocol itself is
// defined by the MCP specification; this package only implements the four
// operations the gateway needs - connect, disconnect, list tools, call
// tool.
//
// # Lifecycle
//
//	client := mcp.NewClient(serverURL, bearerToken, logger)
//	tools, err := client.Connect(ctx)   // idempotent
//	res, err := client.CallTool(ctx, "get_forecast", args)
//	err = client.Disconnect(ctx)        // local state always cleared
//
// Connect never leaves a half-open transport: any handshake failure tears
// down partial state before returning. Disconnect is effectively total -
// the client is disconnected locally even when the remote close fails.
//
// # Stream maintenance
//
// The background event stream retries transient drops with exponential
// backoff (1s initial, 1.5x growth, 20s cap, 5 attempts) before declaring
// the connection dead.
package mcp
