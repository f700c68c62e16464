package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 5*time.Minute, cfg.StatsCacheTTL)
	require.Equal(t, 200, cfg.MaxBulkEntries)
	require.Equal(t, 30*time.Second, cfg.NotificationRetryInterval)
	require.Equal(t, 5, cfg.NotificationMaxAttempts)
	require.Equal(t, "gema", cfg.NotificationChannel)
	require.Equal(t, "*", cfg.CORSAllowOrigins)
	require.False(t, cfg.CloudinaryEnabled())
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_APP_PORT", ":9000")
	t.Setenv("GEMA_STATS_CACHE_TTL", "90s")
	t.Setenv("GEMA_GRADING_MAX_BULK_ENTRIES", "50")
	t.Setenv("GEMA_NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddress())
	require.Equal(t, 90*time.Second, cfg.StatsCacheTTL)
	require.Equal(t, 50, cfg.MaxBulkEntries)
	require.Equal(t, "nats://localhost:4222", cfg.NATSURL)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDurations(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_STATS_CACHE_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}
