// Package auth exchanges configured machine credentials for a bearer token.
//
// The gateway never inspects the token it receives; the Credential is
// forwarded verbatim as an Authorization header when the MCP tool
// connection is established. A failed exchange is always reported as
// ErrAuthFailed so callers can distinguish credential problems from
// connection or session problems.
package auth
