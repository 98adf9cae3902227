package token

import (
	"context"
	"testing"
	"time"

	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/model"
	"github.com/gimel-foundation/authcore/pkg/storage/memstore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := New(memstore.NewTokenStore(), Options{Secret: []byte("test-secret"), Audience: "test-svc"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestCreateAndVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	signed, record, err := s.Create(ctx, CreateParams{Groups: []string{"admin", "admin"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(record.Groups) != 1 {
		t.Fatalf("expected duplicate groups collapsed, got %v", record.Groups)
	}

	info, err := s.Verify(ctx, signed, VerifyParams{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if info.RecordID != record.ID {
		t.Fatalf("expected record id %q, got %q", record.ID, info.RecordID)
	}
}

func TestVerifyRejectsRevokedToken(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	signed, _, _ := s.Create(ctx, CreateParams{Groups: []string{"admin"}})
	ok, err := s.Revoke(ctx, signed)
	if err != nil || !ok {
		t.Fatalf("Revoke: %v, %v", err, ok)
	}

	_, err = s.Verify(ctx, signed, VerifyParams{})
	if !autherrors.Is(err, autherrors.KindTokenRevoked) {
		t.Fatalf("expected TokenRevoked, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	signed, _, _ := s.Create(ctx, CreateParams{Groups: []string{"admin"}})
	first, err := s.Revoke(ctx, signed)
	if err != nil || !first {
		t.Fatalf("first revoke: %v, %v", err, first)
	}
	second, err := s.Revoke(ctx, signed)
	if err != nil || second {
		t.Fatalf("second revoke should report false, got %v, %v", err, second)
	}
}

func TestVerifyRejectsExpiredTokenRecord(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockTime := base
	s, err := New(memstore.NewTokenStore(), Options{
		Secret:   []byte("test-secret"),
		Audience: "test-svc",
		Clock:    func() time.Time { return clockTime },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ttl := 1 * time.Second
	signed, _, err := s.Create(ctx, CreateParams{Groups: []string{"admin"}, TTL: &ttl})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clockTime = base.Add(2 * time.Second)
	_, err = s.Verify(ctx, signed, VerifyParams{})
	if !autherrors.Is(err, autherrors.KindTokenExpired) && !autherrors.Is(err, autherrors.KindTokenValidation) {
		t.Fatalf("expected expired or validation error, got %v", err)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if _, _, err := s.Create(ctx, CreateParams{Groups: []string{"admin"}, Name: "prod-api"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, _, err := s.Create(ctx, CreateParams{Groups: []string{"admin"}, Name: "Prod-API"})
	if !autherrors.Is(err, autherrors.KindConflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestRevokeByName(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	_, record, err := s.Create(ctx, CreateParams{Groups: []string{"admin"}, Name: "prod-api"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := s.RevokeByName(ctx, "PROD-API")
	if err != nil || !ok {
		t.Fatalf("RevokeByName: %v, %v", err, ok)
	}

	got, _ := s.GetByName(ctx, "prod-api")
	if got.ID != record.ID || got.Status != model.TokenRevoked {
		t.Fatalf("expected revoked record, got %+v", got)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	signed, _, _ := s.Create(ctx, CreateParams{Groups: []string{"admin"}})
	_, _, _ = s.Create(ctx, CreateParams{Groups: []string{"admin"}})
	_, _ = s.Revoke(ctx, signed)

	revoked := model.TokenRevoked
	list, err := s.List(ctx, &revoked)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 revoked record, got %d", len(list))
	}
}

func TestVerifyFingerprintMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	signed, _, err := s.Create(ctx, CreateParams{Groups: []string{"admin"}, Fingerprint: "fp-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = s.Verify(ctx, signed, VerifyParams{Fingerprint: "fp-2"})
	if !autherrors.Is(err, autherrors.KindFingerprintMismatch) {
		t.Fatalf("expected FingerprintMismatch, got %v", err)
	}
}
