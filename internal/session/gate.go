// ABOUTME: Access gate run before every chat operation on a session.
// ABOUTME: Distinguishes missing credentials, dead sessions, and expired ones.

package session

import (
	"errors"
	"fmt"
	"time"
)

// Gate failure modes. Handlers map these to distinct user-facing responses:
// an incomplete session means the caller must connect first, a missing
// session means the server evicted it, and a failed validation means the
// credential is no longer good.
var (
	ErrIncompleteSession = errors.New("session is missing credentials")
	ErrNoActiveSession   = errors.New("no active session")
	ErrValidationFailed  = errors.New("session validation failed")
)

// Ticket is the caller's proof of an established session: the upstream
// bearer token, its expiry, and the session ID the connection was bound
// under.
type Ticket struct {
	Token     string
	ExpiresAt time.Time
	SessionID string
}

// Acquirer is the slice of the registry the gate needs.
type Acquirer interface {
	Acquire(id string) (Connection, func(), error)
}

// Gate validates tickets against the live session registry.
type Gate struct {
	registry Acquirer
}

// NewGate creates a gate over the given registry.
func NewGate(registry Acquirer) *Gate {
	return &Gate{registry: registry}
}

// Check validates a ticket and returns the session's connection with a
// lease held. Callers must invoke release when the operation completes.
func (g *Gate) Check(ticket Ticket) (Connection, func(), error) {
	if ticket.Token == "" || ticket.SessionID == "" {
		return nil, nil, ErrIncompleteSession
	}
	if !ticket.ExpiresAt.IsZero() && time.Now().After(ticket.ExpiresAt) {
		return nil, nil, ErrValidationFailed
	}

	conn, release, err := g.registry.Acquire(ticket.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil, ErrNoActiveSession
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return conn, release, nil
}
