package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.json")

	data, _ := json.Marshal(Credentials{RoleID: "r1", SecretID: "s1"})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.RoleID != "r1" || creds.SecretID != "s1" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	_, err := LoadCredentials("/nonexistent/path/creds.json")
	if err == nil {
		t.Fatal("expected error for missing credentials file")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateUnauthenticated: "unauthenticated",
		StateAuthenticated:   "authenticated",
		StateNeedsRelogin:    "needs_relogin",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestNewAgentStartsUnauthenticated(t *testing.T) {
	a := New(Credentials{RoleID: "r1", SecretID: "s1"}, Options{VaultAddress: "http://127.0.0.1:8200"})
	if a.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated initial state, got %v", a.State())
	}
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	a := New(Credentials{RoleID: "r1", SecretID: "s1"}, Options{VaultAddress: "http://127.0.0.1:8200"})
	a.Stop()
	if a.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated after stop, got %v", a.State())
	}
}
