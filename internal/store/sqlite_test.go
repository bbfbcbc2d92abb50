// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers thread CRUD, message persistence, and message ordering/limiting

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewSQLiteStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := NewSQLiteStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateAndGetThread(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	thread := &Thread{
		ID:        "thread-123",
		SessionID: "mcp-session-abc",
		UserEmail: "user@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.CreateThread(ctx, thread); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}

	got, err := store.GetThread(ctx, "thread-123")
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if got.SessionID != thread.SessionID {
		t.Errorf("SessionID = %q, want %q", got.SessionID, thread.SessionID)
	}
	if got.UserEmail != thread.UserEmail {
		t.Errorf("UserEmail = %q, want %q", got.UserEmail, thread.UserEmail)
	}
	if !got.CreatedAt.Equal(thread.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, thread.CreatedAt)
	}
}

func TestCreateThread_Duplicate(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	thread := &Thread{ID: "t1", SessionID: "s1", UserEmail: "a@b.c", CreatedAt: now, UpdatedAt: now}

	if err := store.CreateThread(ctx, thread); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if err := store.CreateThread(ctx, thread); !errors.Is(err, ErrDuplicateThread) {
		t.Errorf("expected ErrDuplicateThread, got %v", err)
	}
}

func TestGetThread_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if _, err := store.GetThread(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetThreadBySession_ReturnsNewest(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	older := &Thread{ID: "t1", SessionID: "s1", UserEmail: "a@b.c", CreatedAt: base.Add(-time.Hour), UpdatedAt: base.Add(-time.Hour)}
	newer := &Thread{ID: "t2", SessionID: "s1", UserEmail: "a@b.c", CreatedAt: base, UpdatedAt: base}
	for _, th := range []*Thread{older, newer} {
		if err := store.CreateThread(ctx, th); err != nil {
			t.Fatalf("CreateThread failed: %v", err)
		}
	}

	got, err := store.GetThreadBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetThreadBySession failed: %v", err)
	}
	if got.ID != "t2" {
		t.Errorf("got thread %q, want t2", got.ID)
	}
}

func TestTouchThread(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	thread := &Thread{ID: "t1", SessionID: "s1", UserEmail: "a@b.c", CreatedAt: created, UpdatedAt: created}
	if err := store.CreateThread(ctx, thread); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}

	touched := time.Now().UTC().Truncate(time.Second)
	if err := store.TouchThread(ctx, "t1", touched); err != nil {
		t.Fatalf("TouchThread failed: %v", err)
	}

	got, err := store.GetThread(ctx, "t1")
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if !got.UpdatedAt.Equal(touched) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, touched)
	}

	if err := store.TouchThread(ctx, "missing", touched); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListThreads_OrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		th := &Thread{
			ID:        fmt.Sprintf("t%d", i),
			SessionID: fmt.Sprintf("s%d", i),
			UserEmail: "a@b.c",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateThread(ctx, th); err != nil {
			t.Fatalf("CreateThread failed: %v", err)
		}
	}

	threads, err := store.ListThreads(ctx, 2)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("got %d threads, want 2", len(threads))
	}
	if threads[0].ID != "t2" || threads[1].ID != "t1" {
		t.Errorf("wrong order: %q, %q", threads[0].ID, threads[1].ID)
	}
}

func TestSaveAndGetMessages(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	thread := &Thread{ID: "t1", SessionID: "s1", UserEmail: "a@b.c", CreatedAt: base, UpdatedAt: base}
	if err := store.CreateThread(ctx, thread); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		sender := SenderUser
		if i%2 == 1 {
			sender = SenderAssistant
		}
		msg := &Message{
			ID:        fmt.Sprintf("m%d", i),
			ThreadID:  "t1",
			Sender:    sender,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	all, err := store.ThreadMessages(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("ThreadMessages failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("got %d messages, want 5", len(all))
	}
	if all[0].ID != "m0" || all[4].ID != "m4" {
		t.Errorf("messages not in chronological order: first=%q last=%q", all[0].ID, all[4].ID)
	}

	// Limit keeps the most recent messages, still oldest first.
	recent, err := store.ThreadMessages(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("ThreadMessages with limit failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d messages, want 2", len(recent))
	}
	if recent[0].ID != "m3" || recent[1].ID != "m4" {
		t.Errorf("wrong window: %q, %q", recent[0].ID, recent[1].ID)
	}
}

func TestThreadMessages_Empty(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	msgs, err := store.ThreadMessages(context.Background(), "nothing", 0)
	if err != nil {
		t.Fatalf("ThreadMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0", len(msgs))
	}
}
