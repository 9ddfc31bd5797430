package kvstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots", "test.db")

	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := store.Get(ctx, "auth-storage"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound for missing key, got %v", err)
	}

	payload := []byte(`{"sessionToken":"tok-1"}`)
	if err := store.Set(ctx, "auth-storage", payload); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, "auth-storage")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}

	// Overwrite replaces, never appends.
	replaced := []byte(`{"sessionToken":"tok-2"}`)
	if err := store.Set(ctx, "auth-storage", replaced); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = store.Get(ctx, "auth-storage")
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if !bytes.Equal(got, replaced) {
		t.Fatalf("expected %q, got %q", replaced, got)
	}

	if err := store.Delete(ctx, "auth-storage"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "auth-storage"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
	}

	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("delete missing key: %v", err)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Set(ctx, "chat-storage", []byte(`{"chats":[]}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "chat-storage")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(got) != `{"chats":[]}` {
		t.Fatalf("unexpected value after reopen: %q", got)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Mutating the returned slice must not leak into the store.
	got[0] = 'x'
	fresh, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if string(fresh) != "v" {
		t.Fatalf("store value was mutated through a returned slice: %q", fresh)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Has("k") {
		t.Fatalf("expected key removed")
	}
}
