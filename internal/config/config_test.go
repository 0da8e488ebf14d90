package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CRDB_DSN", "postgresql://root@localhost:26257/merchpit")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgresql://root@localhost:26257/merchpit", cfg.CRDBDSN)
	assert.Equal(t, 1500*time.Millisecond, cfg.Payment.MinDelay)
	assert.Equal(t, 2*time.Second, cfg.Payment.MaxDelay)
	assert.Equal(t, 3*time.Second, cfg.ScanCooldown)
	assert.Equal(t, 72*time.Hour, cfg.PickupWindow)
	assert.Equal(t, 60, cfg.UserRateLimit)
	assert.Equal(t, "merchpit.audit", cfg.AuditQueue)
	assert.False(t, cfg.Storage.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAYMENT_MIN_DELAY", "10ms")
	t.Setenv("PAYMENT_MAX_DELAY", "20ms")
	t.Setenv("S3_BUCKET", "merch-images")
	t.Setenv("S3_ACCESS_KEY_ID", "key")
	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, cfg.Payment.MinDelay)
	assert.True(t, cfg.Storage.Enabled())
}

func TestLoad_RejectsInvertedPaymentDelay(t *testing.T) {
	t.Setenv("PAYMENT_MIN_DELAY", "2s")
	t.Setenv("PAYMENT_MAX_DELAY", "1s")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsTimeoutWithinPaymentDelay(t *testing.T) {
	t.Setenv("PAYMENT_MAX_DELAY", "3s")
	t.Setenv("PAYMENT_TIMEOUT", "3s")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PAYMENT_TIMEOUT", "4s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, cfg.Payment.Timeout)
}
