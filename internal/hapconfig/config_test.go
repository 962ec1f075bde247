package hapconfig_test

import (
	"os"
	"testing"

	"github.com/hkadk/hapcore/internal/hapconfig"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HAPD_LOG_LEVEL", "HAPD_ACCESSORY_CATEGORY", "HAPD_ACCESSORY_NAME",
		"HAPD_SETUP_CODE", "HAPD_SETUP_ID", "HAPD_IP_PORT",
		"HAPD_ENABLE_IP", "HAPD_ENABLE_BLE", "HAPD_STATE_PATH",
	} {
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := hapconfig.Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, uint16(1), cfg.AccessoryCategoryID)
	assert.True(t, cfg.EnableIP)
	assert.False(t, cfg.EnableBLE)
}

func TestLoadRejectsCategoryOutOfRange(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("HAPD_ACCESSORY_CATEGORY", "99"))
	defer os.Unsetenv("HAPD_ACCESSORY_CATEGORY")

	_, err := hapconfig.Load()
	assert.Error(t, err)
}

func TestLoadRejectsNoTransportEnabled(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("HAPD_ENABLE_IP", "false"))
	defer os.Unsetenv("HAPD_ENABLE_IP")

	_, err := hapconfig.Load()
	assert.Error(t, err)
}

func TestNewLoggerFallsBackToInfoOnBadLevel(t *testing.T) {
	cfg := &hapconfig.Config{LogLevel: "not-a-level"}
	logger := cfg.NewLogger()
	assert.NotNil(t, logger)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
