package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/example/resy-sniper/internal/credentials"
	"github.com/example/resy-sniper/internal/sniper"
)

type Config struct {
	APIKey    string  `env:"RESY_API_KEY"`
	AuthToken string  `env:"RESY_AUTH_TOKEN"`
	BaseURL   string  `env:"RESY_BASE_URL" envDefault:"https://api.resy.com"`
	Timezone  string  `env:"RESY_TIMEZONE" envDefault:"America/New_York"`
	PollRate  float64 `env:"RESY_POLL_RATE" envDefault:"4"`
	PollBurst int     `env:"RESY_POLL_BURST" envDefault:"2"`

	CredentialsPath string `env:"RESY_CREDENTIALS"`
	HashKey         string `env:"CRED_HASH_KEY"`
	BlockKey        string `env:"CRED_BLOCK_KEY"`
	Passphrase      string `env:"CRED_PASSPHRASE"`

	DatabaseURL string `env:"DATABASE_URL"`
	WatchAddr   string `env:"WATCH_ADDR"`

	Sniper Sniper
}

// Sniper mirrors sniper.Config.
type Sniper struct {
	BurstWidth      int           `env:"SNIPER_BURST_WIDTH" envDefault:"5"`
	TotalBudget     time.Duration `env:"SNIPER_TOTAL_BUDGET" envDefault:"20s"`
	LeadWindow      time.Duration `env:"SNIPER_LEAD_WINDOW" envDefault:"2s"`
	BackoffBase     time.Duration `env:"SNIPER_BACKOFF_BASE" envDefault:"200ms"`
	BackoffCap      time.Duration `env:"SNIPER_BACKOFF_CAP" envDefault:"2s"`
	AttemptTimeout  time.Duration `env:"SNIPER_ATTEMPT_TIMEOUT" envDefault:"3s"`
	ClockTolerance  time.Duration `env:"SNIPER_CLOCK_TOLERANCE" envDefault:"150ms"`
	SyncProbes      int           `env:"SNIPER_SYNC_PROBES" envDefault:"5"`
	SyncAttempts    int           `env:"SNIPER_SYNC_ATTEMPTS" envDefault:"3"`
	SyncStaleness   time.Duration `env:"SNIPER_SYNC_STALENESS" envDefault:"60s"`
	StrictClock     bool          `env:"SNIPER_STRICT_CLOCK" envDefault:"false"`
	ResolveDeadline time.Duration `env:"SNIPER_RESOLVE_DEADLINE" envDefault:"10s"`
	CadenceMin      time.Duration `env:"SNIPER_CADENCE_MIN" envDefault:"250ms"`
	CadenceMax      time.Duration `env:"SNIPER_CADENCE_MAX" envDefault:"30s"`
	ResolveRetries  int           `env:"SNIPER_RESOLVE_RETRIES" envDefault:"3"`
	RetryJitter     time.Duration `env:"SNIPER_RETRY_JITTER" envDefault:"50ms"`
	TokenTTL        time.Duration `env:"SNIPER_TOKEN_TTL" envDefault:"60s"`
	SpinWindow      time.Duration `env:"SNIPER_SPIN_WINDOW" envDefault:"2ms"`
}

// Load reads the dotenv file at path when it exists, without overriding
// variables already set, then parses the environment.
func Load(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return Parse()
}

// Parse reads the environment as it is.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = defaultCredentialsPath()
	}
	if _, err := cfg.Engine(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Engine converts the SNIPER_* settings and validates them.
func (c Config) Engine() (sniper.Config, error) {
	s := c.Sniper
	ec := sniper.Config{
		BurstWidth:      s.BurstWidth,
		TotalBudget:     s.TotalBudget,
		LeadWindow:      s.LeadWindow,
		PollBackoff:     sniper.BackoffConfig{Base: s.BackoffBase, Cap: s.BackoffCap},
		AttemptTimeout:  s.AttemptTimeout,
		ClockTolerance:  s.ClockTolerance,
		SyncProbes:      s.SyncProbes,
		SyncAttempts:    s.SyncAttempts,
		SyncStaleness:   s.SyncStaleness,
		StrictClock:     s.StrictClock,
		ResolveDeadline: s.ResolveDeadline,
		Cadence:         sniper.Cadence{Min: s.CadenceMin, Max: s.CadenceMax},
		ResolveRetries:  s.ResolveRetries,
		RetryJitter:     s.RetryJitter,
		TokenTTL:        s.TokenTTL,
		SpinWindow:      s.SpinWindow,
	}
	if err := ec.Validate(); err != nil {
		return sniper.Config{}, err
	}
	return ec, nil
}

// Location is the venue timezone slot times are read in.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("RESY_TIMEZONE: %w", err)
	}
	return loc, nil
}

// Store opens the credential store. A passphrase takes precedence over
// explicit keys.
func (c Config) Store() (*credentials.Store, error) {
	if c.Passphrase != "" {
		return credentials.NewPassphraseStore(c.CredentialsPath, c.Passphrase), nil
	}
	if c.HashKey == "" || c.BlockKey == "" {
		return nil, credentials.ErrNoKeys
	}
	hash, err := decodeB64(c.HashKey)
	if err != nil {
		return nil, fmt.Errorf("CRED_HASH_KEY: %w", err)
	}
	block, err := decodeB64(c.BlockKey)
	if err != nil {
		return nil, fmt.Errorf("CRED_BLOCK_KEY: %w", err)
	}
	switch len(block) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("CRED_BLOCK_KEY: must decode to 16, 24 or 32 bytes, got %d", len(block))
	}
	return credentials.NewStore(c.CredentialsPath, credentials.Keys{Hash: hash, Block: block}), nil
}

func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		// allow pointing to file path for k8s secret mounts
		s = string(b)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "resysnipe-credentials.json"
	}
	return filepath.Join(dir, "resysnipe", "credentials.json")
}
