// ABOUTME: Tests for the session registry and access gate.
// ABOUTME: Uses a fake connection; sweeps are driven directly for determinism.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmline/chatgate/internal/mcp"
)

type fakeConn struct {
	mu           sync.Mutex
	disconnected int
}

func (f *fakeConn) Tools() []mcp.Tool { return nil }

func (f *fakeConn) CallTool(context.Context, string, json.RawMessage) (mcp.CallToolResult, error) {
	return mcp.CallToolResult{}, nil
}

func (f *fakeConn) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected++
	return nil
}

func (f *fakeConn) disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

func testRegistry(t *testing.T, idle time.Duration) *Registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(idle, time.Hour, logger)
	t.Cleanup(func() { r.Close(context.Background()) })
	return r
}

func TestRegistry_BindAndAcquire(t *testing.T) {
	r := testRegistry(t, time.Minute)
	conn := &fakeConn{}
	r.Bind("s1", conn)

	got, release, err := r.Acquire("s1")
	require.NoError(t, err)
	assert.Same(t, Connection(conn), got)
	release()

	assert.Equal(t, 1, r.Len())
}

func TestRegistry_AcquireUnknown(t *testing.T) {
	r := testRegistry(t, time.Minute)

	_, _, err := r.Acquire("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_RebindDisconnectsOld(t *testing.T) {
	r := testRegistry(t, time.Minute)
	old := &fakeConn{}
	r.Bind("s1", old)
	r.Bind("s1", &fakeConn{})

	assert.Eventually(t, func() bool {
		return old.disconnects() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_IdleEviction(t *testing.T) {
	r := testRegistry(t, 20*time.Millisecond)
	conn := &fakeConn{}
	r.Bind("s1", conn)

	time.Sleep(40 * time.Millisecond)
	r.sweep()

	assert.Equal(t, 0, r.Len())
	assert.Eventually(t, func() bool {
		return conn.disconnects() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRegistry_TouchedSessionSurvives(t *testing.T) {
	r := testRegistry(t, 50*time.Millisecond)
	r.Bind("s1", &fakeConn{})

	time.Sleep(30 * time.Millisecond)
	r.Touch("s1")
	time.Sleep(30 * time.Millisecond)
	r.sweep()

	assert.Equal(t, 1, r.Len())
}

func TestRegistry_LeaseDefersEviction(t *testing.T) {
	r := testRegistry(t, 20*time.Millisecond)
	conn := &fakeConn{}
	r.Bind("s1", conn)

	_, release, err := r.Acquire("s1")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	r.sweep()
	assert.Equal(t, 1, r.Len(), "leased session must not be evicted")
	assert.Equal(t, 0, conn.disconnects())

	release()
	// Release refreshed activity, so it survives until idle again.
	r.sweep()
	assert.Equal(t, 1, r.Len())

	time.Sleep(40 * time.Millisecond)
	r.sweep()
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_AcquireSerialized(t *testing.T) {
	r := testRegistry(t, time.Minute)
	r.Bind("s1", &fakeConn{})

	_, release1, err := r.Acquire("s1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		_, release2, err := r.Acquire("s1")
		if err == nil {
			release2()
		}
		close(acquired)
	}()

	// The second acquire must wait for the first lease to be released.
	select {
	case <-acquired:
		t.Fatal("second acquire completed while first lease held")
	case <-time.After(50 * time.Millisecond):
	}

	release1()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestRegistry_ReleaseIdempotent(t *testing.T) {
	r := testRegistry(t, time.Minute)
	r.Bind("s1", &fakeConn{})

	_, release, err := r.Acquire("s1")
	require.NoError(t, err)
	release()
	release()

	_, release2, err := r.Acquire("s1")
	require.NoError(t, err)
	release2()
}

func TestRegistry_Remove(t *testing.T) {
	r := testRegistry(t, time.Minute)
	conn := &fakeConn{}
	r.Bind("s1", conn)

	require.NoError(t, r.Remove(context.Background(), "s1"))
	assert.Equal(t, 1, conn.disconnects())
	assert.Equal(t, 0, r.Len())

	assert.ErrorIs(t, r.Remove(context.Background(), "s1"), ErrSessionNotFound)
}

func TestRegistry_CloseDisconnectsAll(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(time.Minute, time.Hour, logger)
	a, b := &fakeConn{}, &fakeConn{}
	r.Bind("s1", a)
	r.Bind("s2", b)

	r.Close(context.Background())

	assert.Equal(t, 1, a.disconnects())
	assert.Equal(t, 1, b.disconnects())
	assert.Equal(t, 0, r.Len())
}

func TestGate_Check(t *testing.T) {
	r := testRegistry(t, time.Minute)
	r.Bind("s1", &fakeConn{})
	gate := NewGate(r)

	valid := Ticket{Token: "tok", ExpiresAt: time.Now().Add(time.Hour), SessionID: "s1"}

	conn, release, err := gate.Check(valid)
	require.NoError(t, err)
	require.NotNil(t, conn)
	release()

	tests := []struct {
		name    string
		ticket  Ticket
		wantErr error
	}{
		{"missing token", Ticket{SessionID: "s1"}, ErrIncompleteSession},
		{"missing session id", Ticket{Token: "tok"}, ErrIncompleteSession},
		{"expired credential", Ticket{Token: "tok", ExpiresAt: time.Now().Add(-time.Minute), SessionID: "s1"}, ErrValidationFailed},
		{"unknown session", Ticket{Token: "tok", ExpiresAt: time.Now().Add(time.Hour), SessionID: "gone"}, ErrNoActiveSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := gate.Check(tt.ticket)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

type faultyAcquirer struct{ err error }

func (f faultyAcquirer) Acquire(string) (Connection, func(), error) {
	return nil, nil, f.err
}

func TestGate_InternalFaultWrapped(t *testing.T) {
	gate := NewGate(faultyAcquirer{err: errors.New("registry corrupt")})

	_, _, err := gate.Check(Ticket{Token: "tok", SessionID: "s1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.ErrorContains(t, err, "registry corrupt")
}

func TestGate_NoExpirySkipsCheck(t *testing.T) {
	r := testRegistry(t, time.Minute)
	r.Bind("s1", &fakeConn{})
	gate := NewGate(r)

	_, release, err := gate.Check(Ticket{Token: "tok", SessionID: "s1"})
	require.NoError(t, err)
	release()
}
