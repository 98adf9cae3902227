package memstore

import (
	"context"
	"testing"

	"github.com/gimel-foundation/authcore/pkg/model"
)

func TestTokenStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewTokenStore()

	rec := &model.TokenRecord{ID: "id-1", Name: "prod-api", Groups: []string{"admin"}, Status: model.TokenActive}
	if err := s.Put(ctx, rec.ID, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "id-1")
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %+v", err, got)
	}
	if got.Name != "prod-api" {
		t.Errorf("expected name prod-api, got %q", got.Name)
	}

	byName, err := s.GetByName(ctx, "prod-api")
	if err != nil || byName == nil || byName.ID != "id-1" {
		t.Fatalf("GetByName: %v, %+v", err, byName)
	}

	exists, _ := s.Exists(ctx, "id-1")
	if !exists {
		t.Error("expected record to exist")
	}

	ok, err := s.Delete(ctx, "id-1")
	if err != nil || !ok {
		t.Fatalf("Delete: %v, %v", err, ok)
	}

	missing, _ := s.Get(ctx, "id-1")
	if missing != nil {
		t.Error("expected nil after delete")
	}

	missingByName, _ := s.GetByName(ctx, "prod-api")
	if missingByName != nil {
		t.Error("expected name index cleared after delete")
	}
}

func TestTokenStoreGetMissingReturnsNilNotError(t *testing.T) {
	ctx := context.Background()
	s := NewTokenStore()

	rec, err := s.Get(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}

func TestGroupStoreRenameUpdatesIndex(t *testing.T) {
	ctx := context.Background()
	s := NewGroupStore()

	g := &model.Group{ID: "g-1", Name: "temp", IsActive: true}
	if err := s.Put(ctx, g.ID, g); err != nil {
		t.Fatalf("Put: %v", err)
	}

	g2 := &model.Group{ID: "g-1", Name: "renamed", IsActive: true}
	if err := s.Put(ctx, g.ID, g2); err != nil {
		t.Fatalf("Put rename: %v", err)
	}

	if found, _ := s.GetByName(ctx, "temp"); found != nil {
		t.Error("old name should no longer resolve")
	}
	if found, _ := s.GetByName(ctx, "renamed"); found == nil {
		t.Error("new name should resolve")
	}
}

func TestLenAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewTokenStore()
	_ = s.Put(ctx, "a", &model.TokenRecord{ID: "a", Status: model.TokenActive})
	_ = s.Put(ctx, "b", &model.TokenRecord{ID: "b", Status: model.TokenActive})

	n, _ := s.Len(ctx)
	if n != 2 {
		t.Fatalf("expected len 2, got %d", n)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	n, _ = s.Len(ctx)
	if n != 0 {
		t.Fatalf("expected len 0 after clear, got %d", n)
	}
}
