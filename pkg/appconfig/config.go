// Package appconfig loads the ambient process configuration (logging,
// metrics, tracing, cache, audit backend) from environment variables once at
// startup, the way cmd/web/main.go's initConfig/initLogger do in the
// teacher, and builds the collaborators every other package takes as
// optional Options fields. Nothing in this package re-reads the environment
// after Load returns.
package appconfig

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/gimel-foundation/authcore/pkg/audit"
	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/obsmetrics"
	"github.com/gimel-foundation/authcore/pkg/obstracing"
)

// AuditBackend selects where audit entries land.
type AuditBackend string

const (
	AuditBackendMemory AuditBackend = "memory"
	AuditBackendFile   AuditBackend = "file"
	AuditBackendRedis  AuditBackend = "redis"
)

// Config is the fully-resolved ambient configuration for one process.
type Config struct {
	LogLevel  string
	LogFormat string

	MetricsEnabled  bool
	MetricsNamespace string

	TracingEnabled bool
	ServiceName    string
	ServiceVersion string
	Environment    string

	CacheEnabled bool
	CacheAddr    string
	CacheTTL     time.Duration

	AuditBackend  AuditBackend
	AuditStore    string
	AuditRedisAddr string
}

// Load reads {prefix}_LOG_LEVEL, {prefix}_LOG_FORMAT and the rest of the
// ambient variables (§6.1) via viper's environment binding.
func Load(prefix string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("CACHE_ADDR", "localhost:6379")
	v.SetDefault("CACHE_TTL", 30)
	v.SetDefault("AUDIT_BACKEND", "memory")
	v.SetDefault("AUDIT_STORE", "data/auth/audit.log")

	cfg := Config{
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFormat:       v.GetString("LOG_FORMAT"),
		MetricsEnabled:  v.GetBool("METRICS_ENABLED"),
		MetricsNamespace: "authcore",
		TracingEnabled:  v.GetBool("TRACING_ENABLED"),
		ServiceName:     prefix,
		ServiceVersion:  v.GetString("SERVICE_VERSION"),
		Environment:     v.GetString("ENVIRONMENT"),
		CacheEnabled:    v.GetBool("CACHE_ENABLED"),
		CacheAddr:       v.GetString("CACHE_ADDR"),
		CacheTTL:        time.Duration(v.GetInt("CACHE_TTL")) * time.Second,
		AuditBackend:    AuditBackend(v.GetString("AUDIT_BACKEND")),
		AuditStore:      v.GetString("AUDIT_STORE"),
		AuditRedisAddr:  v.GetString("CACHE_ADDR"),
	}

	switch cfg.AuditBackend {
	case AuditBackendMemory, AuditBackendFile, AuditBackendRedis:
	default:
		return Config{}, autherrors.New(autherrors.KindValidation, fmt.Sprintf("unknown audit backend %q", cfg.AuditBackend))
	}

	return cfg, nil
}

// NewLogger builds a logrus.Logger at the configured level and format,
// mirroring cmd/web/main.go's initLogger.
func NewLogger(cfg Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	return logger
}

// LogError logs err against entry at its natural level, attaching the
// structured fields *autherrors.Error carries (credential/secret fields
// never reach this point; autherrors.Error.WithField drops them at the
// source).
func LogError(entry *logrus.Entry, err error) {
	var authErr *autherrors.Error
	if ae, ok := err.(*autherrors.Error); ok {
		authErr = ae
	}
	if authErr == nil {
		entry.WithError(err).Error("operation failed")
		return
	}
	entry.WithFields(authErr.LogFields()).WithError(err).Error(authErr.Message)
}

// NewMetricsRecorder builds an obsmetrics.Recorder when cfg.MetricsEnabled,
// or nil otherwise so callers can pass it straight through to every
// Options.Metrics field unconditionally.
func NewMetricsRecorder(cfg Config, reg prometheus.Registerer) *obsmetrics.Recorder {
	if !cfg.MetricsEnabled {
		return nil
	}
	return obsmetrics.NewRecorder(cfg.MetricsNamespace, reg)
}

// NewTracerProvider builds an obstracing.Provider when cfg.TracingEnabled,
// or nil otherwise so callers can pass it straight through to every
// Options.Tracer field unconditionally.
func NewTracerProvider(cfg Config) (*obstracing.Provider, error) {
	if !cfg.TracingEnabled {
		return nil, nil
	}
	return obstracing.New(obstracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
	})
}

// NewAuditLogger builds an audit.Logger over the backend cfg.AuditBackend
// selects. metrics may be nil, matching NewMetricsRecorder's disabled case.
func NewAuditLogger(cfg Config, metrics *obsmetrics.Recorder) (*audit.Logger, error) {
	var storage audit.Storage
	switch cfg.AuditBackend {
	case AuditBackendFile:
		fs, err := audit.NewFileStorage(audit.FileConfig{Directory: filepath.Dir(cfg.AuditStore)})
		if err != nil {
			return nil, err
		}
		storage = fs
	case AuditBackendRedis:
		rs, err := audit.NewRedisStorage(audit.RedisConfig{Addresses: []string{cfg.AuditRedisAddr}})
		if err != nil {
			return nil, err
		}
		storage = rs
	default:
		storage = audit.NewMemoryStorage()
	}
	return audit.NewLogger(audit.Config{Storage: storage, Metrics: metrics}), nil
}
