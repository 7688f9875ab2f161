package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 48*time.Hour, cfg.StaleRemittanceAfter)
	require.Equal(t, 5, cfg.WorkerConcurrency)
	require.Equal(t, "FCFA", cfg.CurrencyLabel)
	require.Equal(t, "Africa/Dakar", cfg.Location().String())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"negative threshold": {"STALE_REMITTANCE_AFTER": "-1h"},
		"zero concurrency":   {"WORKER_CONCURRENCY": "0"},
		"unknown timezone":   {"APP_TIMEZONE": "Mars/Olympus"},
		"bad duration":       {"CACHE_TTL": "soon"},
		"unknown log level":  {"LOG_LEVEL": "chatty"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	var cfg *Config
	require.Equal(t, time.UTC, cfg.Location())
	require.Equal(t, time.UTC, (&Config{AppTimezone: "nowhere"}).Location())
}
