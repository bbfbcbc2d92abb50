// ABOUTME: Store interface and data types for conversation persistence.
// ABOUTME: Defines Thread and Message structs plus the Store interface.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateThread is returned when creating a thread whose ID already exists
var ErrDuplicateThread = errors.New("thread already exists")

// Sender constants for transcript messages
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Thread is one chat session's transcript container. A thread is created
// when a session connects and accumulates messages until the session ends.
type Thread struct {
	ID        string
	SessionID string
	UserEmail string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single transcript entry within a thread
type Message struct {
	ID        string
	ThreadID  string
	Sender    string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Store defines the interface for transcript persistence
type Store interface {
	CreateThread(ctx context.Context, thread *Thread) error
	GetThread(ctx context.Context, id string) (*Thread, error)
	GetThreadBySession(ctx context.Context, sessionID string) (*Thread, error)
	TouchThread(ctx context.Context, id string, at time.Time) error
	ListThreads(ctx context.Context, limit int) ([]*Thread, error)

	SaveMessage(ctx context.Context, msg *Message) error
	ThreadMessages(ctx context.Context, threadID string, limit int) ([]*Message, error)

	Close() error
}
