package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Duration(15*time.Second), cfg.TrafficInterval)
		assert.Equal(t, 0.1, cfg.PhaseAdvanceChance)
	})

	t.Run("durations parse from the usual notation", func(t *testing.T) {
		path := writeConfig(t, `
listen_addr: ":9000"
traffic_interval: 10s
phase_interval: 45s
congestion_interval: 1m
token_expiry: 1h30m
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, 10*time.Second, cfg.TrafficInterval.Std())
		assert.Equal(t, 45*time.Second, cfg.PhaseInterval.Std())
		assert.Equal(t, time.Minute, cfg.CongestionInterval.Std())
		assert.Equal(t, 90*time.Minute, cfg.TokenExpiry.Std())
	})

	t.Run("invalid duration is rejected", func(t *testing.T) {
		path := writeConfig(t, "traffic_interval: fifteen\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		path := writeConfig(t, "listen_adr: \":9000\"\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("out of range advance chance is rejected", func(t *testing.T) {
		path := writeConfig(t, "phase_advance_chance: 1.5\n")
		_, err := Load(path)
		assert.Error(t, err)
	})
}
