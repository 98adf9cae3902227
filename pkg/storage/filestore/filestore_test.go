package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gimel-foundation/authcore/pkg/model"
)

func TestExternalWriteDetectedOnReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")

	a, err := NewTokenStore(path)
	if err != nil {
		t.Fatalf("NewTokenStore(a): %v", err)
	}
	b, err := NewTokenStore(path)
	if err != nil {
		t.Fatalf("NewTokenStore(b): %v", err)
	}

	r1 := &model.TokenRecord{ID: "r1", Status: model.TokenActive}
	if err := a.Put(ctx, r1.ID, r1); err != nil {
		t.Fatalf("Put r1: %v", err)
	}

	if err := b.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got, _ := b.Get(ctx, "r1"); got == nil {
		t.Fatal("expected b to see r1 after reload")
	}

	// Without a reload, b must not observe r2 even after a fresh write —
	// get/list/len are served entirely from cache.
	time.Sleep(10 * time.Millisecond)
	r2 := &model.TokenRecord{ID: "r2", Status: model.TokenActive}
	if err := a.Put(ctx, r2.ID, r2); err != nil {
		t.Fatalf("Put r2: %v", err)
	}
	if got, _ := b.Get(ctx, "r2"); got != nil {
		t.Fatal("b should not see r2 before an explicit reload")
	}

	if err := b.Reload(ctx); err != nil {
		t.Fatalf("Reload 2: %v", err)
	}
	if got, _ := b.Get(ctx, "r2"); got == nil {
		t.Fatal("expected b to see r2 after second reload")
	}
}

func TestDeletedFileClearsCacheOnReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")

	s, err := NewTokenStore(path)
	if err != nil {
		t.Fatalf("NewTokenStore: %v", err)
	}
	if err := s.Put(ctx, "r1", &model.TokenRecord{ID: "r1", Status: model.TokenActive}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	n, _ := s.Len(ctx)
	if n != 0 {
		t.Fatalf("expected cache cleared after file removal, got len %d", n)
	}
}

func TestAtomicWriteLeavesNoTempFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "groups.json")

	s, err := NewGroupStore(path)
	if err != nil {
		t.Fatalf("NewGroupStore: %v", err)
	}
	if err := s.Put(ctx, "g1", &model.Group{ID: "g1", Name: "public", IsActive: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "groups.json" {
		t.Fatalf("expected only groups.json in dir, got %+v", entries)
	}
}
