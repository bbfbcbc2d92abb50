// ABOUTME: Session registry mapping session IDs to live tool connections.
// ABOUTME: Sweeps idle sessions on a timer; leases defer eviction of busy ones.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/helmline/chatgate/internal/mcp"
)

// ErrSessionNotFound indicates no live connection for the session ID.
var ErrSessionNotFound = errors.New("session not found")

// Connection is the per-session tool connection held by the registry.
type Connection interface {
	Tools() []mcp.Tool
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (mcp.CallToolResult, error)
	Disconnect(ctx context.Context) error
}

type entry struct {
	conn         Connection
	lastActivity time.Time
	leases       int

	// busy serializes reply computations on this session's connection;
	// it is held for the lifetime of one Acquire lease.
	busy sync.Mutex
}

// Registry tracks the live tool connections for active chat sessions and
// evicts ones that sit idle past the timeout. A session that is mid-reply
// holds a lease and is never evicted while the lease is out.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	idleTimeout   time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewRegistry creates a registry and starts its background sweeper.
func NewRegistry(idleTimeout, sweepInterval time.Duration, logger *slog.Logger) *Registry {
	r := &Registry{
		entries:       make(map[string]*entry),
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
		logger:        logger.With("component", "session"),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Bind registers a connection under a session ID. Binding over an existing
// session replaces the old connection, which is disconnected in the
// background.
func (r *Registry) Bind(id string, conn Connection) {
	r.mu.Lock()
	old := r.entries[id]
	r.entries[id] = &entry{conn: conn, lastActivity: time.Now()}
	r.mu.Unlock()

	r.logger.Info("session bound", "session_id", id)

	if old != nil {
		go r.disconnect(id, old.conn)
	}
}

// Acquire returns the connection for a session and takes a lease on it.
// The caller must invoke the returned release function when done; the
// lease keeps the sweeper from evicting the session mid-use. Acquires on
// the same session are serialized: a second caller blocks until the first
// releases, so one connection never runs two reply computations at once.
func (r *Registry) Acquire(id string) (Connection, func(), error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil, nil, ErrSessionNotFound
	}
	e.leases++
	e.lastActivity = time.Now()
	r.mu.Unlock()

	// Taken outside the registry lock; the lease already protects the
	// entry from eviction while we wait our turn.
	e.busy.Lock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.busy.Unlock()
			r.mu.Lock()
			defer r.mu.Unlock()
			if cur, ok := r.entries[id]; ok && cur == e {
				cur.leases--
				cur.lastActivity = time.Now()
			}
		})
	}
	return e.conn, release, nil
}

// Touch refreshes a session's activity timestamp.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.lastActivity = time.Now()
	}
}

// Remove drops a session and disconnects its connection.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	r.logger.Info("session removed", "session_id", id)
	return e.conn.Disconnect(ctx)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close stops the sweeper and disconnects every remaining session.
func (r *Registry) Close(ctx context.Context) {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done

	r.mu.Lock()
	remaining := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for id, e := range remaining {
		if err := e.conn.Disconnect(ctx); err != nil {
			r.logger.Warn("disconnect during close failed", "session_id", id, "error", err)
		}
	}
}

func (r *Registry) sweepLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep evicts sessions idle past the timeout. Leased entries are skipped
// and picked up on a later pass once the lease is released.
func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	var evicted []struct {
		id   string
		conn Connection
	}
	for id, e := range r.entries {
		if e.leases > 0 || e.lastActivity.After(cutoff) {
			continue
		}
		delete(r.entries, id)
		evicted = append(evicted, struct {
			id   string
			conn Connection
		}{id, e.conn})
	}
	r.mu.Unlock()

	for _, ev := range evicted {
		r.logger.Info("evicting idle session", "session_id", ev.id)
		go r.disconnect(ev.id, ev.conn)
	}
}

func (r *Registry) disconnect(id string, conn Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Disconnect(ctx); err != nil {
		r.logger.Warn("disconnect failed", "session_id", id, "error", err)
	}
}
