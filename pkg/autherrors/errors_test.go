package autherrors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorCreation(t *testing.T) {
	err := New(KindInvalidGroup, "unknown group")
	if err.Kind != KindInvalidGroup {
		t.Errorf("expected kind %s, got %s", KindInvalidGroup, err.Kind)
	}
	if err.Message != "unknown group" {
		t.Errorf("expected message 'unknown group', got %q", err.Message)
	}
	if err.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
	if err.HTTPStatus() != 403 {
		t.Errorf("expected HTTP 403, got %d", err.HTTPStatus())
	}
}

func TestErrorString(t *testing.T) {
	err1 := New(KindConflict, "name already exists")
	if got, want := err1.Error(), "conflict: name already exists"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	cause := fmt.Errorf("duplicate key")
	err2 := Wrap(KindConflict, "name already exists", cause)
	if got, want := err2.Error(), "conflict: name already exists: duplicate key"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWithFieldRedaction(t *testing.T) {
	err := New(KindTokenService, "store write failed").
		WithField("record_id", "abc-123").
		WithField("credential", "eyJhbGciOi...").
		WithField("secret", "super-secret")

	if err.Fields["record_id"] != "abc-123" {
		t.Error("expected record_id field to be retained")
	}
	if _, ok := err.Fields["credential"]; ok {
		t.Error("credential field must never be stored")
	}
	if _, ok := err.Fields["secret"]; ok {
		t.Error("secret field must never be stored")
	}
}

func TestLogFields(t *testing.T) {
	err := New(KindStorageUnavailable, "vault unreachable").
		WithField("backend", "vault").
		WithField("secret", "super-secret")

	fields := err.LogFields()
	if fields["backend"] != "vault" {
		t.Error("expected backend field to be present")
	}
	if fields["kind"] != string(KindStorageUnavailable) {
		t.Errorf("expected kind field %q, got %v", KindStorageUnavailable, fields["kind"])
	}
	if _, ok := fields["secret"]; ok {
		t.Error("secret field must never reach LogFields")
	}
}

func TestIsAndUnwrap(t *testing.T) {
	base := New(KindTokenRevoked, "revoked")
	wrapped := fmt.Errorf("verify failed: %w", base)

	if !Is(wrapped, KindTokenRevoked) {
		t.Error("expected Is to find the wrapped Kind")
	}
	if Is(wrapped, KindTokenExpired) {
		t.Error("expected Is to reject an unrelated Kind")
	}

	plain := stderrors.New("boring error")
	if Is(plain, KindTokenRevoked) {
		t.Error("Is must return false for errors that are not *Error")
	}
}
