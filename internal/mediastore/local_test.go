package mediastore

import (
	"context"
	"testing"
)

func TestLocalStoreWriteReadStat(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	key := "rooms/r1/hd/part-0.m4s"
	if err := s.Write(ctx, key, []byte("part bytes"), ContentType(key)); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := s.Read(ctx, key)
	if err != nil || string(data) != "part bytes" {
		t.Fatalf("read = %q, %v", data, err)
	}
	size, err := s.Stat(ctx, key)
	if err != nil || size != int64(len("part bytes")) {
		t.Fatalf("stat = %d, %v", size, err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Stat(ctx, key); err != ErrNotExist {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestLocalStoreReadRange(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	if err := s.Write(ctx, "k", []byte("abcdefghij"), "application/octet-stream"); err != nil {
		t.Fatalf("write: %v", err)
	}
	rc, err := s.ReadRange(ctx, "k", 3, 3)
	if err != nil {
		t.Fatalf("readrange: %v", err)
	}
	defer rc.Close()
	buf := make([]byte, 3)
	if _, err := rc.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "def" {
		t.Fatalf("got %q, want def", buf)
	}
}

func TestLocalStoreReadMissing(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	if _, err := s.Read(ctx, "missing"); err != ErrNotExist {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}
