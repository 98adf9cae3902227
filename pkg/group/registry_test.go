package group

import (
	"context"
	"testing"
	"time"

	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/storage/memstore"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestEnsureReservedGroupsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewGroupStore()

	r, err := New(ctx, store, Options{AutoBootstrap: true, Clock: fixedClock(time.Unix(0, 0))})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	groups, _ := r.ListGroups(ctx, true)
	if len(groups) != 2 {
		t.Fatalf("expected 2 reserved groups, got %d", len(groups))
	}

	if err := r.EnsureReservedGroups(ctx); err != nil {
		t.Fatalf("second EnsureReservedGroups: %v", err)
	}
	groups, _ = r.ListGroups(ctx, true)
	if len(groups) != 2 {
		t.Fatalf("expected still 2 reserved groups after re-run, got %d", len(groups))
	}
}

func TestCreateGroupRejectsReservedName(t *testing.T) {
	ctx := context.Background()
	r, _ := New(ctx, memstore.NewGroupStore(), Options{})

	_, err := r.CreateGroup(ctx, "Admin", "")
	if err == nil {
		t.Fatal("expected error creating group named admin")
	}
	if !autherrors.Is(err, autherrors.KindValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateGroupRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	r, _ := New(ctx, memstore.NewGroupStore(), Options{})

	if _, err := r.CreateGroup(ctx, "billing", ""); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := r.CreateGroup(ctx, "Billing", "")
	if err == nil {
		t.Fatal("expected conflict on duplicate case-folded name")
	}
	if !autherrors.Is(err, autherrors.KindConflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestMakeDefunctRefusesReserved(t *testing.T) {
	ctx := context.Background()
	r, _ := New(ctx, memstore.NewGroupStore(), Options{AutoBootstrap: true})

	admin, err := r.GetGroupByName(ctx, "admin")
	if err != nil || admin == nil {
		t.Fatalf("GetGroupByName: %v, %+v", err, admin)
	}

	if err := r.MakeDefunct(ctx, admin.ID); err == nil {
		t.Fatal("expected error making reserved group defunct")
	}
}

func TestMakeDefunctIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, _ := New(ctx, memstore.NewGroupStore(), Options{})

	g, err := r.CreateGroup(ctx, "temp", "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if err := r.MakeDefunct(ctx, g.ID); err != nil {
		t.Fatalf("first MakeDefunct: %v", err)
	}
	if err := r.MakeDefunct(ctx, g.ID); err != nil {
		t.Fatalf("second MakeDefunct should be a no-op, got: %v", err)
	}

	groups, _ := r.ListGroups(ctx, false)
	for _, found := range groups {
		if found.ID == g.ID {
			t.Fatal("expected defunct group excluded from active listing")
		}
	}
}

func TestListGroupsIncludeDefunct(t *testing.T) {
	ctx := context.Background()
	r, _ := New(ctx, memstore.NewGroupStore(), Options{})

	g, _ := r.CreateGroup(ctx, "temp", "")
	_ = r.MakeDefunct(ctx, g.ID)

	active, _ := r.ListGroups(ctx, false)
	all, _ := r.ListGroups(ctx, true)
	if len(all) != len(active)+1 {
		t.Fatalf("expected include_defunct to surface the defunct group: active=%d all=%d", len(active), len(all))
	}
}
