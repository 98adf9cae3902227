package vaultkv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVaultServer stands in for a running Vault server, answering just
// enough of the KV-v2 HTTP API for Client's read/write/delete/list calls.
func fakeVaultServer(t *testing.T) *httptest.Server {
	t.Helper()
	secrets := map[string]map[string]interface{}{}

	mux := http.NewServeMux()
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
		case http.MethodDelete:
			delete(secrets, path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/v1/secret/metadata/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path[len("/v1/secret/metadata/"):]
		switch r.Method {
		case "LIST", http.MethodGet:
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
		case http.MethodDelete:
			delete(secrets, path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/v1/sys/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"initialized": true, "sealed": false})
	})

	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Address:   addr,
		VerifySSL: false,
		Token:     "test-token",
	})
	require.NoError(t, err)
	return client
}

func TestClientWriteThenReadSecret(t *testing.T) {
	srv := fakeVaultServer(t)
	defer srv.Close()
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, client.WriteSecret(ctx, "authcore/tokens/t1", map[string]interface{}{"name": "svc-a"}))

	data, err := client.ReadSecret(ctx, "authcore/tokens/t1")
	require.NoError(t, err)
	assert.Equal(t, "svc-a", data["name"])
}

func TestClientReadMissingSecretReturnsNil(t *testing.T) {
	srv := fakeVaultServer(t)
	defer srv.Close()
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	data, err := client.ReadSecret(ctx, "authcore/tokens/missing")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestClientDeleteSecret(t *testing.T) {
	srv := fakeVaultServer(t)
	defer srv.Close()
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, client.WriteSecret(ctx, "authcore/tokens/t2", map[string]interface{}{"name": "svc-b"}))
	require.NoError(t, client.DeleteSecret(ctx, "authcore/tokens/t2", false))

	exists, err := client.SecretExists(ctx, "authcore/tokens/t2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClientListSecrets(t *testing.T) {
	srv := fakeVaultServer(t)
	defer srv.Close()
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, client.WriteSecret(ctx, "authcore/tokens/t3", map[string]interface{}{"name": "svc-c"}))
	require.NoError(t, client.WriteSecret(ctx, "authcore/tokens/t4", map[string]interface{}{"name": "svc-d"}))

	keys, err := client.ListSecrets(ctx, "authcore/tokens")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestClientHealthCheck(t *testing.T) {
	srv := fakeVaultServer(t)
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	healthy, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, healthy)
}

func TestNewClientRequiresAuthentication(t *testing.T) {
	srv := fakeVaultServer(t)
	defer srv.Close()

	_, err := NewClient(Config{Address: srv.URL})
	require.Error(t, err)
}
