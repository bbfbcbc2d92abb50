// Package web serves the browser chat UI.
//
// Access is gated on a shared bcrypt-hashed password. After login, all chat
// state (the upstream bearer token, the MCP session ID, and the transcript
// thread ID) travels in an HS256-signed cookie, so the server keeps no
// per-browser state beyond the session registry itself. Assistant replies
// are rendered as markdown; user text is always escaped.
package web
