package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost:5432/greenmart",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	env := baseEnv()
	for _, key := range []string{"REWARD_MAX_RETRIES", "REWARD_SPINS_PER_DAY", "SHIPPING_DEFAULT_FEE", "STORE_LATITUDE", "PORT"} {
		env[key] = ""
	}
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.RewardMaxRetries)
	require.Equal(t, 1, cfg.RewardSpinsPerDay)
	require.Equal(t, 24*time.Hour, cfg.RewardSpinWindow)
	require.Equal(t, int64(30000), cfg.ShippingDefaultFee)
	require.InDelta(t, 10.7769, cfg.StoreLatitude, 1e-9)
	require.Equal(t, 10, cfg.SpinBurstPerMin)
	require.Equal(t, "300-M", cfg.HTTPRateLimit)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["REWARD_MAX_RETRIES"] = "3"
	env["REWARD_SPIN_WINDOW"] = "1h"
	env["SHIPPING_DEFAULT_FEE"] = "20000"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example, https://b.example"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.RewardMaxRetries)
	require.Equal(t, time.Hour, cfg.RewardSpinWindow)
	require.Equal(t, int64(20000), cfg.ShippingDefaultFee)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadRequiresSecrets(t *testing.T) {
	env := baseEnv()
	env["JWT_SECRET"] = ""
	_, err := LoadForTests(env)
	require.EqualError(t, err, "JWT_SECRET is required")
}

func TestLoadRejectsNegativeDefaultFee(t *testing.T) {
	env := baseEnv()
	env["SHIPPING_DEFAULT_FEE"] = "-1"
	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	env := baseEnv()
	env["REWARD_SPIN_WINDOW"] = "tomorrow"
	_, err := LoadForTests(env)
	require.ErrorContains(t, err, "decode config")
}

func TestLoadReportsEveryMissingSecret(t *testing.T) {
	_, err := LoadForTests(map[string]string{"DATABASE_URL": "", "REDIS_URL": "", "JWT_SECRET": ""})
	require.EqualError(t, err, "DATABASE_URL is required; REDIS_URL is required; JWT_SECRET is required")
}
