package storage

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"

	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/obsmetrics"
	"github.com/gimel-foundation/authcore/pkg/obstracing"
	"github.com/gimel-foundation/authcore/pkg/storage/filestore"
	"github.com/gimel-foundation/authcore/pkg/storage/memstore"
	"github.com/gimel-foundation/authcore/pkg/storage/rediscache"
	"github.com/gimel-foundation/authcore/pkg/storage/vaultstore"
	"github.com/gimel-foundation/authcore/pkg/vaultkv"
)

// Backend identifies which storage implementation a Config selects.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendVault  Backend = "vault"
)

// Config is the fully-resolved storage configuration for one service. Load
// builds it from environment variables under a prefix; it never reads the
// environment again afterward, so behavior cannot drift mid-process.
type Config struct {
	Backend Backend

	TokenStorePath string
	GroupStorePath string

	VaultURL        string
	VaultToken      string
	VaultRoleID     string
	VaultSecretID   string
	VaultMountPoint string
	VaultPathPrefix string
	VaultTimeout    time.Duration
	VaultVerifySSL  bool

	// CacheEnabled wraps the token store Open returns with a Redis
	// read-through cache (rediscache.Store).
	CacheEnabled bool
	CacheAddr    string
	CacheTTL     time.Duration

	// Metrics, when set, is threaded into the vault-backed client Open
	// constructs. Nil disables metrics recording.
	Metrics *obsmetrics.Recorder

	// Tracer, when set, is threaded into the vault-backed client Open
	// constructs. Nil disables tracing.
	Tracer *obstracing.Provider
}

// Load reads {prefix}_AUTH_BACKEND and its companion variables via viper's
// environment binding and returns a validated Config.
func Load(prefix string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()

	v.SetDefault("AUTH_BACKEND", "memory")
	v.SetDefault("TOKEN_STORE", "data/auth/tokens.json")
	v.SetDefault("GROUP_STORE", "data/auth/groups.json")
	v.SetDefault("VAULT_MOUNT_POINT", "secret")
	v.SetDefault("VAULT_PATH_PREFIX", "gofr/auth")
	v.SetDefault("VAULT_TIMEOUT", 30)
	v.SetDefault("VAULT_VERIFY_SSL", true)
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("CACHE_ADDR", "localhost:6379")
	v.SetDefault("CACHE_TTL", 30)

	cfg := Config{
		Backend:         Backend(v.GetString("AUTH_BACKEND")),
		TokenStorePath:  v.GetString("TOKEN_STORE"),
		GroupStorePath:  v.GetString("GROUP_STORE"),
		VaultURL:        v.GetString("VAULT_URL"),
		VaultToken:      v.GetString("VAULT_TOKEN"),
		VaultRoleID:     v.GetString("VAULT_ROLE_ID"),
		VaultSecretID:   v.GetString("VAULT_SECRET_ID"),
		VaultMountPoint: v.GetString("VAULT_MOUNT_POINT"),
		VaultPathPrefix: v.GetString("VAULT_PATH_PREFIX"),
		VaultTimeout:    time.Duration(v.GetInt("VAULT_TIMEOUT")) * time.Second,
		VaultVerifySSL:  v.GetBool("VAULT_VERIFY_SSL"),
		CacheEnabled:    v.GetBool("CACHE_ENABLED"),
		CacheAddr:       v.GetString("CACHE_ADDR"),
		CacheTTL:        time.Duration(v.GetInt("CACHE_TTL")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendMemory, BackendFile:
		return nil
	case BackendVault:
		if c.VaultURL == "" {
			return autherrors.New(autherrors.KindValidation, "vault backend requires VAULT_URL")
		}
		hasToken := c.VaultToken != ""
		hasAppRole := c.VaultRoleID != "" && c.VaultSecretID != ""
		if !hasToken && !hasAppRole {
			return autherrors.New(autherrors.KindValidation, "vault backend requires VAULT_TOKEN or VAULT_ROLE_ID+VAULT_SECRET_ID")
		}
		return nil
	default:
		return autherrors.New(autherrors.KindValidation, fmt.Sprintf("unknown auth backend %q", c.Backend))
	}
}

// Open constructs the (TokenStore, GroupStore) pair the Config selects,
// without the caller needing to know which backend it got. When
// cfg.CacheEnabled, the token store is wrapped with a Redis cache-aside
// layer (rediscache.Store) regardless of which backend it came from.
func Open(cfg Config) (TokenStore, GroupStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	tokens, groups, err := open(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.CacheEnabled {
		tokens = rediscache.NewStore(tokens, redis.NewClient(&redis.Options{Addr: cfg.CacheAddr}), rediscache.Config{
			Prefix:  "authcore:",
			TTL:     cfg.CacheTTL,
			Metrics: cfg.Metrics,
		})
	}
	return tokens, groups, nil
}

func open(cfg Config) (TokenStore, GroupStore, error) {
	switch cfg.Backend {
	case BackendMemory:
		return memstore.NewTokenStore(), memstore.NewGroupStore(), nil

	case BackendFile:
		tokens, err := filestore.NewTokenStore(cfg.TokenStorePath)
		if err != nil {
			return nil, nil, autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to open token file store", err)
		}
		groups, err := filestore.NewGroupStore(cfg.GroupStorePath)
		if err != nil {
			return nil, nil, autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to open group file store", err)
		}
		return tokens, groups, nil

	case BackendVault:
		client, err := vaultkv.NewClient(vaultkv.Config{
			Address:    cfg.VaultURL,
			MountPoint: cfg.VaultMountPoint,
			Timeout:    cfg.VaultTimeout,
			VerifySSL:  cfg.VaultVerifySSL,
			Token:      cfg.VaultToken,
			RoleID:     cfg.VaultRoleID,
			SecretID:   cfg.VaultSecretID,
			Metrics:    cfg.Metrics,
			Tracer:     cfg.Tracer,
		})
		if err != nil {
			return nil, nil, err
		}
		return vaultstore.NewTokenStore(client, cfg.VaultPathPrefix), vaultstore.NewGroupStore(client, cfg.VaultPathPrefix), nil

	default:
		return nil, nil, autherrors.New(autherrors.KindValidation, fmt.Sprintf("unknown auth backend %q", cfg.Backend))
	}
}
