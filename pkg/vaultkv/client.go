// Package vaultkv wraps github.com/hashicorp/vault/api with the thin,
// KV-v2-shaped surface the storage and admin layers need: read, write,
// soft/hard delete, list, health, and two authentication modes (a static
// session token, or AppRole role-id/secret-id exchange for a renewable
// one).
package vaultkv

import (
	"context"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/gimel-foundation/authcore/internal/circuit"
	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/obsmetrics"
	"github.com/gimel-foundation/authcore/pkg/obstracing"
)

// Config configures a Client.
type Config struct {
	Address    string
	MountPoint string        // KV-v2 mount point, e.g. "secret"
	Timeout    time.Duration // connect+read timeout
	VerifySSL  bool

	// Authentication: exactly one of Token or RoleID+SecretID is used.
	Token    string
	RoleID   string
	SecretID string

	// Metrics, when set, records storage operation counts/latency and
	// circuit breaker state transitions. Nil disables metrics recording.
	Metrics *obsmetrics.Recorder

	// Tracer, when set, wraps each ReadSecret and WriteSecret call in a
	// span; DeleteSecret and ListSecrets are not traced. Nil disables tracing.
	Tracer *obstracing.Provider
}

// Client is an authenticated handle to the remote KV store.
type Client struct {
	api        *vaultapi.Client
	mountPoint string
	breaker    *circuit.Breaker
	metrics    *obsmetrics.Recorder
	tracer     *obstracing.Provider
	cfg        Config
}

// NewClient builds a Client and authenticates it per cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.MountPoint == "" {
		cfg.MountPoint = "secret"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	vc := vaultapi.DefaultConfig()
	vc.Address = cfg.Address
	vc.Timeout = cfg.Timeout
	if err := vc.ConfigureTLS(&vaultapi.TLSConfig{Insecure: !cfg.VerifySSL}); err != nil {
		return nil, autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to configure vault TLS", err)
	}

	api, err := vaultapi.NewClient(vc)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to build vault client", err)
	}

	c := &Client{
		api:        api,
		mountPoint: cfg.MountPoint,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
		breaker: circuit.New(circuit.Options{
			Name:             "vaultkv",
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
			OnStateChange: func(name string, from, to circuit.State) {
				circuit.DefaultMonitor.OnStateChange(name, from, to, time.Now())
				if cfg.Metrics != nil {
					cfg.Metrics.RecordCircuitState("vaultkv", to.String())
				}
			},
			OnSuccess: circuit.DefaultMonitor.OnSuccess,
			OnFailure: circuit.DefaultMonitor.OnFailure,
		}),
		cfg: cfg,
	}

	if err := c.authenticate(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) authenticate(ctx context.Context) error {
	if c.cfg.Token != "" {
		c.api.SetToken(c.cfg.Token)
		return nil
	}
	if c.cfg.RoleID == "" || c.cfg.SecretID == "" {
		return autherrors.New(autherrors.KindValidation, "vaultkv: no token or role-id/secret-id configured")
	}
	return c.loginAppRole(ctx)
}

func (c *Client) loginAppRole(ctx context.Context) error {
	secret, err := c.api.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
		"role_id":   c.cfg.RoleID,
		"secret_id": c.cfg.SecretID,
	})
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "approle login failed", err)
	}
	if secret == nil || secret.Auth == nil {
		return autherrors.New(autherrors.KindStorageUnavailable, "approle login returned no auth info")
	}
	c.api.SetToken(secret.Auth.ClientToken)
	return nil
}

// Reconnect re-runs authentication, used after a transport fault.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.authenticate(ctx)
}

// SessionTokenTTL returns the TTL the last authentication granted, or zero
// if the client is using a static token.
func (c *Client) SessionTokenTTL(ctx context.Context) (time.Duration, error) {
	secret, err := c.api.Auth().Token().LookupSelfWithContext(ctx)
	if err != nil {
		return 0, autherrors.Wrap(autherrors.KindStorageUnavailable, "token lookup-self failed", err)
	}
	ttl, ok := secret.Data["ttl"].(int64)
	if !ok {
		if f, ok := secret.Data["ttl"].(float64); ok {
			ttl = int64(f)
		}
	}
	return time.Duration(ttl) * time.Second, nil
}

// RenewSelf renews the current session token and returns its new TTL.
func (c *Client) RenewSelf(ctx context.Context, increment time.Duration) (time.Duration, error) {
	secret, err := c.api.Auth().Token().RenewSelfWithContext(ctx, int(increment.Seconds()))
	if err != nil {
		return 0, autherrors.Wrap(autherrors.KindStorageUnavailable, "token renew-self failed", err)
	}
	if secret == nil || secret.Auth == nil {
		return 0, autherrors.New(autherrors.KindStorageUnavailable, "renew-self returned no auth info")
	}
	return time.Duration(secret.Auth.LeaseDuration) * time.Second, nil
}

// SessionToken returns the token the underlying api.Client currently holds.
func (c *Client) SessionToken() string {
	return c.api.Token()
}

// IsAuthenticated reports whether the client currently holds a usable
// session token.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	if c.api.Token() == "" {
		return false
	}
	_, err := c.api.Auth().Token().LookupSelfWithContext(ctx)
	return err == nil
}

// HealthCheck reports whether the server is reachable, initialized, and
// unsealed.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	health, err := c.api.Sys().HealthWithContext(ctx)
	if err != nil {
		return false, autherrors.Wrap(autherrors.KindStorageUnavailable, "health check failed", err)
	}
	return health.Initialized && !health.Sealed, nil
}

// BreakerStats returns the circuit breaker's request/failure counters and
// current state, or nil if no call has gone through it yet.
func (c *Client) BreakerStats() *circuit.Stats {
	return circuit.DefaultMonitor.GetStats(c.breaker.Name())
}

func (c *Client) fullPath(path string) string {
	return fmt.Sprintf("%s/data/%s", c.mountPoint, path)
}

func (c *Client) metadataPath(path string) string {
	return fmt.Sprintf("%s/metadata/%s", c.mountPoint, path)
}

func (c *Client) recordOperation(operation string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordStorageOperation("vaultkv", operation, status)
	c.metrics.ObserveStorageLatency("vaultkv", operation, time.Since(start))
}

func (c *Client) startSpan(ctx context.Context, name, path string) (context.Context, func()) {
	if c.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := c.tracer.StartSpan(ctx, name, obstracing.AttributePath.String(path))
	return ctx, func() { span.End() }
}

// ReadSecret returns the decoded data map, or nil if path has no secret.
func (c *Client) ReadSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	ctx, end := c.startSpan(ctx, obstracing.SpanVaultRead, path)
	defer end()
	start := time.Now()
	var result map[string]interface{}
	err := c.breaker.Call(func() error {
		secret, err := c.api.Logical().ReadWithContext(ctx, c.fullPath(path))
		if err != nil {
			return autherrors.Wrap(autherrors.KindStorageUnavailable, "read secret failed", err).WithField("path", path)
		}
		if secret == nil || secret.Data == nil {
			return nil
		}
		data, ok := secret.Data["data"].(map[string]interface{})
		if !ok {
			return nil
		}
		result = data
		return nil
	})
	c.recordOperation("read", start, err)
	return result, err
}

// WriteSecret creates a new version of the secret at path.
func (c *Client) WriteSecret(ctx context.Context, path string, data map[string]interface{}) error {
	ctx, end := c.startSpan(ctx, obstracing.SpanVaultWrite, path)
	defer end()
	start := time.Now()
	err := c.breaker.Call(func() error {
		_, err := c.api.Logical().WriteWithContext(ctx, c.fullPath(path), map[string]interface{}{"data": data})
		if err != nil {
			return autherrors.Wrap(autherrors.KindStorageUnavailable, "write secret failed", err).WithField("path", path)
		}
		return nil
	})
	c.recordOperation("write", start, err)
	return err
}

// DeleteSecret removes the secret at path. hard=false marks all versions
// deleted (recoverable); hard=true destroys versions and metadata.
func (c *Client) DeleteSecret(ctx context.Context, path string, hard bool) error {
	start := time.Now()
	err := c.breaker.Call(func() error {
		var err error
		if hard {
			_, err = c.api.Logical().DeleteWithContext(ctx, c.metadataPath(path))
		} else {
			_, err = c.api.Logical().DeleteWithContext(ctx, c.fullPath(path))
		}
		if err != nil {
			return autherrors.Wrap(autherrors.KindStorageUnavailable, "delete secret failed", err).WithField("path", path)
		}
		return nil
	})
	c.recordOperation("delete", start, err)
	return err
}

// ListSecrets lists the direct children of path (keys ending in "/" are
// sub-directories).
func (c *Client) ListSecrets(ctx context.Context, path string) ([]string, error) {
	start := time.Now()
	var keys []string
	err := c.breaker.Call(func() error {
		secret, err := c.api.Logical().ListWithContext(ctx, c.metadataPath(path))
		if err != nil {
			return autherrors.Wrap(autherrors.KindStorageUnavailable, "list secrets failed", err).WithField("path", path)
		}
		if secret == nil || secret.Data == nil {
			return nil
		}
		raw, ok := secret.Data["keys"].([]interface{})
		if !ok {
			return nil
		}
		keys = make([]string, 0, len(raw))
		for _, k := range raw {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return nil
	})
	c.recordOperation("list", start, err)
	return keys, err
}

// SecretExists reports whether path has a (non-deleted) secret.
func (c *Client) SecretExists(ctx context.Context, path string) (bool, error) {
	data, err := c.ReadSecret(ctx, path)
	if err != nil {
		return false, err
	}
	return data != nil, nil
}
