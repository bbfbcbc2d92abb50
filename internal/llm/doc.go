// ABOUTME: Package llm wraps the Anthropic Messages API.
// ABOUTME: Provides message/content-block types and a completion client.

// Package llm provides the model provider client used by the chat driver.
//
// The client speaks the Anthropic Messages API: conversations are lists of
// user/assistant messages whose content is a sequence of typed blocks, and
// tool definitions can be attached to a request so the model may respond
// with tool_use blocks. Provider-side failures are returned as *APIError
// with the provider's error type preserved.
package llm
