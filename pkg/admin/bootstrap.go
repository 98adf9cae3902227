// Package admin implements the admin/bootstrap orchestration (C12): taking
// a sealed remote KV store to a working auth system, and provisioning
// least-privilege machine identities for the services that will use it.
package admin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/gimel-foundation/authcore/pkg/audit"
	"github.com/gimel-foundation/authcore/pkg/auth"
	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/group"
	"github.com/gimel-foundation/authcore/pkg/model"
	"github.com/gimel-foundation/authcore/pkg/obsmetrics"
	"github.com/gimel-foundation/authcore/pkg/obstracing"
	"github.com/gimel-foundation/authcore/pkg/storage/vaultstore"
	"github.com/gimel-foundation/authcore/pkg/token"
	"github.com/gimel-foundation/authcore/pkg/vaultkv"
)

// ServiceIdentity describes one machine identity to provision a role for.
type ServiceIdentity struct {
	Name              string
	ServiceSecretsGlob string // e.g. "secret/data/gofr-mcp/*"
	SharedConfigGlob   string // e.g. "secret/data/shared/*"
	AuthDataGlob       string // e.g. "secret/data/gofr/auth/*"
}

// Config configures the Bootstrapper.
type Config struct {
	VaultAddress string
	MountPoint   string
	AuthPrefix   string // e.g. "gofr/auth"

	SecretsDir string // operator-controlled directory, created mode 0700

	Services []ServiceIdentity

	JWTSigningSecret []byte
	JWTAudience      string

	// Audit, when set, receives an entry for every bootstrap step. Nil
	// disables audit logging.
	Audit *audit.Logger

	// Metrics, when set, is threaded into the group registry and token
	// service this bootstrapper constructs. Nil disables metrics recording.
	Metrics *obsmetrics.Recorder

	// Tracer, when set, is threaded into the vaultkv clients this
	// bootstrapper constructs. Nil disables tracing.
	Tracer *obstracing.Provider
}

// Bootstrapper drives a sealed Vault instance to a working auth system.
type Bootstrapper struct {
	cfg   Config
	vault *vaultapi.Client
}

func (b *Bootstrapper) logAudit(ctx context.Context, entry *audit.Entry) {
	if b.cfg.Audit == nil {
		return
	}
	b.cfg.Audit.Log(ctx, entry)
}

// New constructs a Bootstrapper with a fresh, unauthenticated Vault API
// client (the root token obtained during Initialize authenticates it).
func New(cfg Config) (*Bootstrapper, error) {
	vc := vaultapi.DefaultConfig()
	vc.Address = cfg.VaultAddress
	client, err := vaultapi.NewClient(vc)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to build vault client", err)
	}
	return &Bootstrapper{cfg: cfg, vault: client}, nil
}

func (b *Bootstrapper) secretsPath(name string) string {
	return filepath.Join(b.cfg.SecretsDir, name)
}

func (b *Bootstrapper) writeSecretFile(name string, data []byte) error {
	if err := os.MkdirAll(b.cfg.SecretsDir, 0700); err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to create secrets directory", err)
	}
	path := b.secretsPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to create secrets subdirectory", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to write secret file", err)
	}
	return nil
}

// Initialize queries Vault's seal status; if uninitialized, requests unseal
// material and a root token, persisting both to the secrets directory.
// No-op (idempotent) if already initialized.
func (b *Bootstrapper) Initialize(ctx context.Context) error {
	status, err := b.vault.Sys().InitStatusWithContext(ctx)
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to query init status", err)
	}
	if status {
		return nil
	}

	resp, err := b.vault.Sys().InitWithContext(ctx, &vaultapi.InitRequest{
		SecretShares:    1,
		SecretThreshold: 1,
	})
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to initialize vault", err)
	}

	if len(resp.KeysB64) == 0 {
		return autherrors.New(autherrors.KindStorageUnavailable, "vault init returned no unseal keys")
	}
	if err := b.writeSecretFile("vault_unseal_key", []byte(resp.KeysB64[0])); err != nil {
		return err
	}
	if err := b.writeSecretFile("vault_root_token", []byte(resp.RootToken)); err != nil {
		return err
	}

	b.vault.SetToken(resp.RootToken)
	b.logAudit(ctx, audit.NewEntry(audit.TypeAdmin).
		WithActor("bootstrapper", audit.ActorSystem).
		WithAction(audit.ActionVaultInitialize).
		WithResult(audit.ResultSuccess))
	return nil
}

// Unseal submits the unseal key from the secrets directory if the store is
// currently sealed.
func (b *Bootstrapper) Unseal(ctx context.Context) error {
	health, err := b.vault.Sys().HealthWithContext(ctx)
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to query health", err)
	}
	if !health.Sealed {
		return nil
	}

	key, err := os.ReadFile(b.secretsPath("vault_unseal_key"))
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to read unseal key", err)
	}
	_, err = b.vault.Sys().UnsealWithContext(ctx, string(key))
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to unseal vault", err)
	}

	if token, readErr := os.ReadFile(b.secretsPath("vault_root_token")); readErr == nil {
		b.vault.SetToken(string(token))
	}
	b.logAudit(ctx, audit.NewEntry(audit.TypeAdmin).
		WithActor("bootstrapper", audit.ActorSystem).
		WithAction(audit.ActionVaultUnseal).
		WithResult(audit.ResultSuccess))
	return nil
}

// SetupEngines enables the KV-v2 secrets engine and the AppRole auth method
// at their configured mount points, tolerating "already enabled" faults.
func (b *Bootstrapper) SetupEngines(ctx context.Context) error {
	mounts, err := b.vault.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to list mounts", err)
	}
	mountPoint := b.cfg.MountPoint + "/"
	if _, ok := mounts[mountPoint]; !ok {
		err := b.vault.Sys().MountWithContext(ctx, b.cfg.MountPoint, &vaultapi.MountInput{
			Type:    "kv",
			Options: map[string]string{"version": "2"},
		})
		if err != nil {
			return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to enable kv-v2 engine", err)
		}
	}

	auths, err := b.vault.Sys().ListAuthWithContext(ctx)
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to list auth methods", err)
	}
	if _, ok := auths["approle/"]; !ok {
		err := b.vault.Sys().EnableAuthWithOptionsWithContext(ctx, "approle", &vaultapi.EnableAuthOptions{Type: "approle"})
		if err != nil {
			return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to enable approle auth", err)
		}
	}
	return nil
}

// WritePolicy writes a least-privilege ACL policy for one service identity:
// read on its own secrets and shared config, full CRUD on the auth data
// path. Overwrites any existing policy of the same name (idempotent).
func (b *Bootstrapper) WritePolicy(ctx context.Context, svc ServiceIdentity) error {
	policy := `
path "` + svc.ServiceSecretsGlob + `" {
  capabilities = ["read"]
}
path "` + svc.SharedConfigGlob + `" {
  capabilities = ["read"]
}
path "` + svc.AuthDataGlob + `" {
  capabilities = ["create", "read", "update", "delete", "list"]
}
`
	if err := b.vault.Sys().PutPolicyWithContext(ctx, policyName(svc.Name), policy); err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to write policy", err)
	}
	b.logAudit(ctx, audit.NewEntry(audit.TypeAdmin).
		WithActor("bootstrapper", audit.ActorSystem).
		WithAction(audit.ActionPolicyWrite).
		WithTarget(svc.Name, "service").
		WithResult(audit.ResultSuccess))
	return nil
}

func policyName(service string) string {
	return service + "-auth-policy"
}

// ProvisionRole creates (or updates) an AppRole bound to the service's
// policy, reads its role-id, generates a fresh secret-id, and persists the
// pair to secrets/service_creds/{service}.json. Re-running rotates only
// the secret-id.
func (b *Bootstrapper) ProvisionRole(ctx context.Context, svc ServiceIdentity) error {
	rolePath := "auth/approle/role/" + svc.Name
	_, err := b.vault.Logical().WriteWithContext(ctx, rolePath, map[string]interface{}{
		"token_policies": policyName(svc.Name),
		"token_ttl":      "1h",
		"token_max_ttl":  "4h",
	})
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to create approle", err)
	}

	roleIDSecret, err := b.vault.Logical().ReadWithContext(ctx, rolePath+"/role-id")
	if err != nil || roleIDSecret == nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to read role-id", err)
	}
	roleID, _ := roleIDSecret.Data["role_id"].(string)

	secretIDSecret, err := b.vault.Logical().WriteWithContext(ctx, rolePath+"/secret-id", nil)
	if err != nil || secretIDSecret == nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to generate secret-id", err)
	}
	secretID, _ := secretIDSecret.Data["secret_id"].(string)

	creds, err := json.Marshal(map[string]string{"role_id": roleID, "secret_id": secretID})
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to encode credentials", err)
	}
	if err := b.writeSecretFile(filepath.Join("service_creds", svc.Name+".json"), creds); err != nil {
		return err
	}
	b.logAudit(ctx, audit.NewEntry(audit.TypeAdmin).
		WithActor("bootstrapper", audit.ActorSystem).
		WithAction(audit.ActionRoleProvision).
		WithTarget(svc.Name, "service").
		WithResult(audit.ResultSuccess))
	return nil
}

// WriteSharedSecrets persists the JWT signing key at the well-known shared
// config path.
func (b *Bootstrapper) WriteSharedSecrets(ctx context.Context) error {
	client, err := vaultkv.NewClient(vaultkv.Config{Address: b.cfg.VaultAddress, MountPoint: b.cfg.MountPoint, Token: b.vault.Token(), Metrics: b.cfg.Metrics, Tracer: b.cfg.Tracer})
	if err != nil {
		return err
	}
	return client.WriteSecret(ctx, "config/jwt-signing-secret", map[string]interface{}{
		"value": string(b.cfg.JWTSigningSecret),
	})
}

// BootstrapAuth ensures reserved groups exist and mints a long-lived
// bootstrap admin token, persisting it to bootstrap_tokens.json.
func (b *Bootstrapper) BootstrapAuth(ctx context.Context) error {
	client, err := vaultkv.NewClient(vaultkv.Config{Address: b.cfg.VaultAddress, MountPoint: b.cfg.MountPoint, Token: b.vault.Token(), Metrics: b.cfg.Metrics, Tracer: b.cfg.Tracer})
	if err != nil {
		return err
	}

	tokenStore := vaultstore.NewTokenStore(client, b.cfg.AuthPrefix)
	groupStore := vaultstore.NewGroupStore(client, b.cfg.AuthPrefix)

	registry, err := group.New(ctx, groupStore, group.Options{AutoBootstrap: true, Audit: b.cfg.Audit, Metrics: b.cfg.Metrics})
	if err != nil {
		return err
	}
	tokenSvc, err := token.New(tokenStore, token.Options{Secret: b.cfg.JWTSigningSecret, Audience: b.cfg.JWTAudience, Audit: b.cfg.Audit, Metrics: b.cfg.Metrics})
	if err != nil {
		return err
	}
	authSvc := auth.New(registry, tokenSvc)

	bootstrapTTL := 10 * 365 * 24 * time.Hour
	signed, _, err := authSvc.CreateToken(ctx, auth.CreateTokenParams{
		Groups: []string{model.ReservedAdmin},
		TTL:    &bootstrapTTL,
		Name:   "bootstrap-admin",
	})
	if err != nil && !autherrors.Is(err, autherrors.KindConflict) {
		return err
	}
	if signed == "" {
		return nil
	}

	creds, err := json.Marshal(map[string]string{"admin_token": signed})
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to encode bootstrap tokens", err)
	}
	return b.writeSecretFile("bootstrap_tokens.json", creds)
}

// Run executes every bootstrap step in order. Every step is independently
// idempotent, so re-running Run after a partial failure is always safe.
func (b *Bootstrapper) Run(ctx context.Context) error {
	if err := b.Initialize(ctx); err != nil {
		return err
	}
	if err := b.Unseal(ctx); err != nil {
		return err
	}
	if err := b.SetupEngines(ctx); err != nil {
		return err
	}
	for _, svc := range b.cfg.Services {
		if err := b.WritePolicy(ctx, svc); err != nil {
			return err
		}
		if err := b.ProvisionRole(ctx, svc); err != nil {
			return err
		}
	}
	if err := b.WriteSharedSecrets(ctx); err != nil {
		return err
	}
	return b.BootstrapAuth(ctx)
}
