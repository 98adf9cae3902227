package appconfig

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("TESTAPP")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.TracingEnabled)
	assert.Equal(t, AuditBackendMemory, cfg.AuditBackend)
}

func TestLoadRejectsUnknownAuditBackend(t *testing.T) {
	os.Setenv("TESTAPP_AUDIT_BACKEND", "carrier-pigeon")
	defer os.Unsetenv("TESTAPP_AUDIT_BACKEND")

	_, err := Load("TESTAPP")
	assert.Error(t, err)
}

func TestNewLoggerAppliesLevelAndFormat(t *testing.T) {
	cfg, err := Load("TESTAPP2")
	require.NoError(t, err)
	cfg.LogLevel = "debug"
	cfg.LogFormat = "text"

	logger := NewLogger(cfg)
	assert.Equal(t, "debug", logger.GetLevel().String())
	_, ok := logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}

func TestNewMetricsRecorderNilWhenDisabled(t *testing.T) {
	cfg, err := Load("TESTAPP3")
	require.NoError(t, err)
	cfg.MetricsEnabled = false

	assert.Nil(t, NewMetricsRecorder(cfg, nil))
}

func TestNewTracerProviderNilWhenDisabled(t *testing.T) {
	cfg, err := Load("TESTAPP4")
	require.NoError(t, err)
	cfg.TracingEnabled = false

	provider, err := NewTracerProvider(cfg)
	require.NoError(t, err)
	assert.Nil(t, provider)
}

func TestNewAuditLoggerDefaultsToMemory(t *testing.T) {
	cfg, err := Load("TESTAPP5")
	require.NoError(t, err)

	logger, err := NewAuditLogger(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
