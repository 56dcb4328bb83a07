package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-sniper/internal/credentials"
	"github.com/example/resy-sniper/internal/sniper"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("RESY_CREDENTIALS", filepath.Join(t.TempDir(), "c.json"))
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "https://api.resy.com", cfg.BaseURL)
	assert.Equal(t, "America/New_York", cfg.Timezone)

	ec, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, sniper.DefaultConfig(), ec)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("RESY_API_KEY", "key")
	t.Setenv("SNIPER_BURST_WIDTH", "8")
	t.Setenv("SNIPER_TOTAL_BUDGET", "45s")
	t.Setenv("SNIPER_STRICT_CLOCK", "true")
	t.Setenv("SNIPER_CADENCE_MIN", "100ms")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "key", cfg.APIKey)
	assert.NotEmpty(t, cfg.CredentialsPath)

	ec, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, 8, ec.BurstWidth)
	assert.Equal(t, 45*time.Second, ec.TotalBudget)
	assert.True(t, ec.StrictClock)
	assert.Equal(t, 100*time.Millisecond, ec.Cadence.Min)
}

func TestParseRejectsBadEngineSettings(t *testing.T) {
	t.Setenv("SNIPER_BURST_WIDTH", "0")
	_, err := Parse()
	assert.ErrorIs(t, err, sniper.ErrInvalidConfig)

	t.Setenv("SNIPER_BURST_WIDTH", "eight")
	_, err = Parse()
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	loc, err := Config{Timezone: "America/New_York"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	_, err = Config{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	k, err := credentials.GenerateKeys()
	require.NoError(t, err)

	t.Run("base64 keys", func(t *testing.T) {
		cfg := Config{
			CredentialsPath: path,
			HashKey:         base64.StdEncoding.EncodeToString(k.Hash),
			BlockKey:        base64.StdEncoding.EncodeToString(k.Block) + "\n",
		}
		s, err := cfg.Store()
		require.NoError(t, err)
		require.NoError(t, s.Save(credentials.Credentials{APIKey: "a", AuthToken: "b"}))
		got, err := s.Load()
		require.NoError(t, err)
		assert.Equal(t, "b", got.AuthToken)
	})

	t.Run("keys from files", func(t *testing.T) {
		hashFile := filepath.Join(dir, "hash")
		blockFile := filepath.Join(dir, "block")
		require.NoError(t, os.WriteFile(hashFile, []byte(base64.StdEncoding.EncodeToString(k.Hash)), 0o600))
		require.NoError(t, os.WriteFile(blockFile, []byte(base64.StdEncoding.EncodeToString(k.Block)), 0o600))
		s, err := Config{CredentialsPath: path, HashKey: hashFile, BlockKey: blockFile}.Store()
		require.NoError(t, err)
		_, err = s.Load()
		require.NoError(t, err)
	})

	t.Run("bad block key length", func(t *testing.T) {
		_, err := Config{
			CredentialsPath: path,
			HashKey:         base64.StdEncoding.EncodeToString(k.Hash),
			BlockKey:        base64.StdEncoding.EncodeToString([]byte("short")),
		}.Store()
		assert.Error(t, err)
	})

	t.Run("no keys", func(t *testing.T) {
		_, err := Config{CredentialsPath: path}.Store()
		assert.ErrorIs(t, err, credentials.ErrNoKeys)
	})

	t.Run("passphrase", func(t *testing.T) {
		s, err := Config{CredentialsPath: filepath.Join(dir, "p.json"), Passphrase: "pw"}.Store()
		require.NoError(t, err)
		require.NoError(t, s.Save(credentials.Credentials{APIKey: "a", AuthToken: "b"}))
	})
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sniper.env")
	require.NoError(t, os.WriteFile(file, []byte("SNIPER_BURST_WIDTH=7\nRESY_TIMEZONE=UTC\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SNIPER_BURST_WIDTH") })
	t.Setenv("RESY_CREDENTIALS", filepath.Join(dir, "c.json"))
	t.Setenv("RESY_TIMEZONE", "Europe/London")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Sniper.BurstWidth)
	assert.Equal(t, "Europe/London", cfg.Timezone, "set variables win over the file")

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)
}
