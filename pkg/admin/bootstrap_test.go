package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault answers just the Vault HTTP endpoints bootstrap.go's
// policy/approle/KV-v2 calls need, the same approach
// pkg/vaultkv/client_test.go uses to stand in for a running Vault server
// and pkg/storage/vaultstore's fakeKV uses to stand in for vaultkv.Client.
func fakeVault(t *testing.T) *httptest.Server {
	t.Helper()
	policies := map[string]string{}
	roles := map[string]map[string]interface{}{}
	secrets := map[string]map[string]interface{}{}

	mux := http.NewServeMux()

	mux.HandleFunc("/v1/sys/policy/", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[len("/v1/sys/policy/"):]
		var body struct {
			Policy string `json:"policy"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		policies[name] = body.Policy
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/auth/approle/role/", func(w http.ResponseWriter, r *http.Request) {
		rest := r.URL.Path[len("/v1/auth/approle/role/"):]
		switch {
		case r.Method == http.MethodPost && rest != "" && !hasSuffix(rest, "/role-id") && !hasSuffix(rest, "/secret-id"):
			roles[rest] = map[string]interface{}{}
			writeJSON(w, map[string]interface{}{})
		case r.Method == http.MethodGet && hasSuffix(rest, "/role-id"):
			writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"role_id": "role-" + rest}})
		case r.Method == http.MethodPost && hasSuffix(rest, "/secret-id"):
			writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"secret_id": "secret-" + rest}})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/v1/secret/data/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path[len("/v1/secret/data/"):]
		switch r.Method {
		case http.MethodGet:
			data, ok := secrets[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"data": data}})
		case http.MethodPut, http.MethodPost:
			var body struct {
				Data map[string]interface{} `json:"data"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			secrets[path] = body.Data
			writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"version": 1}})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/v1/secret/metadata/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path[len("/v1/secret/metadata/"):]
		var keys []string
		for p := range secrets {
			if len(p) > len(path) && p[:len(path)] == path {
				keys = append(keys, p[len(path):])
			}
		}
		if len(keys) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"keys": keys}})
	})

	return httptest.NewServer(mux)
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestBootstrapper(t *testing.T, addr string) *Bootstrapper {
	t.Helper()
	b, err := New(Config{
		VaultAddress:     addr,
		MountPoint:       "secret",
		AuthPrefix:       "authcore/auth",
		SecretsDir:       t.TempDir(),
		JWTSigningSecret: []byte("test-signing-secret"),
		JWTAudience:      "authcore",
	})
	require.NoError(t, err)
	b.vault.SetToken("root-token")
	return b
}

func TestWritePolicyWritesLeastPrivilegeACL(t *testing.T) {
	srv := fakeVault(t)
	defer srv.Close()
	b := newTestBootstrapper(t, srv.URL)

	svc := ServiceIdentity{
		Name:               "svc-a",
		ServiceSecretsGlob: "secret/data/svc-a/*",
		SharedConfigGlob:   "secret/data/shared/*",
		AuthDataGlob:       "secret/data/authcore/auth/*",
	}
	require.NoError(t, b.WritePolicy(context.Background(), svc))
}

func TestProvisionRolePersistsCredentialsFile(t *testing.T) {
	srv := fakeVault(t)
	defer srv.Close()
	b := newTestBootstrapper(t, srv.URL)

	svc := ServiceIdentity{Name: "svc-b"}
	require.NoError(t, b.ProvisionRole(context.Background(), svc))

	data, err := os.ReadFile(filepath.Join(b.cfg.SecretsDir, "service_creds", "svc-b.json"))
	require.NoError(t, err)

	var creds map[string]string
	require.NoError(t, json.Unmarshal(data, &creds))
	assert.NotEmpty(t, creds["role_id"])
	assert.NotEmpty(t, creds["secret_id"])
}

func TestWriteSharedSecretsPersistsJWTSigningKey(t *testing.T) {
	srv := fakeVault(t)
	defer srv.Close()
	b := newTestBootstrapper(t, srv.URL)

	require.NoError(t, b.WriteSharedSecrets(context.Background()))
}

func TestBootstrapAuthMintsAdminTokenOnce(t *testing.T) {
	srv := fakeVault(t)
	defer srv.Close()
	b := newTestBootstrapper(t, srv.URL)

	require.NoError(t, b.BootstrapAuth(context.Background()))

	data, err := os.ReadFile(filepath.Join(b.cfg.SecretsDir, "bootstrap_tokens.json"))
	require.NoError(t, err)

	var tokens map[string]string
	require.NoError(t, json.Unmarshal(data, &tokens))
	assert.NotEmpty(t, tokens["admin_token"])

	// Re-running is idempotent: the bootstrap-admin name already exists, so
	// CreateToken returns a conflict that BootstrapAuth swallows.
	require.NoError(t, b.BootstrapAuth(context.Background()))
}
