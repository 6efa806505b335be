package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "admin", cfg.Database.Name)
	assert.Equal(t, ";", cfg.Ingest.Delimiter)
	assert.Equal(t, ';', cfg.Ingest.DelimiterRune())
	assert.Equal(t, 15*time.Second, cfg.Ingest.StartupDelay)
	assert.Equal(t, "abort", cfg.Ingest.OnError)
	assert.Equal(t, 10, cfg.Server.TopN)
	assert.Equal(t, "dmy", cfg.Ingest.DateOrder)
	assert.Equal(t, 10*time.Minute, cfg.Alerts.RefreshInterval)
	assert.Equal(t, 404, cfg.Alerts.NotFoundStatus)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OPSTRACKER_DATABASE_DRIVER", "SQLServer")
	t.Setenv("OPSTRACKER_DATABASE_PORT", "14330")
	t.Setenv("OPSTRACKER_INGEST_DELIMITER", ",")
	t.Setenv("OPSTRACKER_INGEST_ON_ERROR", "skip")
	t.Setenv("OPSTRACKER_INGEST_STARTUP_DELAY", "0s")
	t.Setenv("OPSTRACKER_INGEST_DATE_ORDER", "MDY")
	t.Setenv("OPSTRACKER_ALERTS_UPSTREAM_URL", "http://upstream.local/")
	t.Setenv("OPSTRACKER_ALERTS_NOT_FOUND_STATUS", "200")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "sqlserver", cfg.Database.Driver)
	assert.Equal(t, 14330, cfg.Database.Port)
	assert.Equal(t, ',', cfg.Ingest.DelimiterRune())
	assert.Equal(t, "skip", cfg.Ingest.OnError)
	assert.Zero(t, cfg.Ingest.StartupDelay)
	assert.Equal(t, "mdy", cfg.Ingest.DateOrder)
	assert.Equal(t, "http://upstream.local", cfg.Alerts.UpstreamURL)
	assert.Equal(t, 200, cfg.Alerts.NotFoundStatus)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"multi-character delimiter", "OPSTRACKER_INGEST_DELIMITER", ";;"},
		{"unknown error policy", "OPSTRACKER_INGEST_ON_ERROR", "ignore"},
		{"ratio above one", "OPSTRACKER_INGEST_MAX_ERROR_RATIO", "1.5"},
		{"unknown timezone", "OPSTRACKER_INGEST_TIMEZONE", "Mars/Olympus"},
		{"unknown date order", "OPSTRACKER_INGEST_DATE_ORDER", "ymd"},
		{"zero top n", "OPSTRACKER_SERVER_TOP_N", "0"},
		{"unsupported not found status", "OPSTRACKER_ALERTS_NOT_FOUND_STATUS", "410"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.val)

			_, err := Load(viper.New())
			assert.Error(t, err)
		})
	}
}
