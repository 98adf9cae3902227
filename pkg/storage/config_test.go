package storage

import (
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/gimel-foundation/authcore/pkg/storage/rediscache"
)

func TestLoadDefaultsToMemory(t *testing.T) {
	cfg, err := Load("TESTSVC")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != BackendMemory {
		t.Fatalf("expected memory backend by default, got %q", cfg.Backend)
	}
}

func TestLoadVaultRequiresCredentials(t *testing.T) {
	os.Setenv("TESTSVC_AUTH_BACKEND", "vault")
	os.Setenv("TESTSVC_VAULT_URL", "https://vault.internal:8200")
	defer os.Unsetenv("TESTSVC_AUTH_BACKEND")
	defer os.Unsetenv("TESTSVC_VAULT_URL")

	_, err := Load("TESTSVC")
	if err == nil {
		t.Fatal("expected validation error with no vault token/approle configured")
	}
}

func TestOpenMemoryBackend(t *testing.T) {
	tokens, groups, err := Open(Config{Backend: BackendMemory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if tokens == nil || groups == nil {
		t.Fatal("expected non-nil stores")
	}
}

func TestOpenFileBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Backend:        BackendFile,
		TokenStorePath: dir + "/tokens.json",
		GroupStorePath: dir + "/groups.json",
	}
	tokens, groups, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if tokens == nil || groups == nil {
		t.Fatal("expected non-nil stores")
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, _, err := Open(Config{Backend: "bogus"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOpenWrapsTokenStoreWithCacheWhenEnabled(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	tokens, _, err := Open(Config{
		Backend:      BackendMemory,
		CacheEnabled: true,
		CacheAddr:    mr.Addr(),
		CacheTTL:     time.Minute,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := tokens.(*rediscache.Store); !ok {
		t.Fatalf("expected token store wrapped in *rediscache.Store, got %T", tokens)
	}
}
