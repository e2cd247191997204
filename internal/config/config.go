package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrDatabaseURLNotSet is the one soft configuration failure: local tooling
// may run without a database, the server may not. Every other Load error
// means the configuration itself is wrong.
var ErrDatabaseURLNotSet = errors.New("DATABASE_URL not set")

// BlacklistMode selects how blacklist entries may arise.
type BlacklistMode string

const (
	BlacklistManual    BlacklistMode = "manual"
	BlacklistAutomatic BlacklistMode = "automatic"
	BlacklistHybrid    BlacklistMode = "hybrid"
)

// AllowsAutomatic reports whether automatic transitions may fire in this mode.
func (m BlacklistMode) AllowsAutomatic() bool {
	return m == BlacklistAutomatic || m == BlacklistHybrid
}

// Reputation holds every trust tunable. It is loaded once and treated as
// immutable; changing a value means building a fresh Reputation via Load and
// re-wiring, never mutating one mid-computation.
type Reputation struct {
	ConfirmationThreshold  int
	ConfirmationTimeout    time.Duration
	MaturityThreshold      int
	DecayHalfLifeDays      float64
	VerdictRetentionDays   int
	MaxVerdictSize         int
	CacheTTL               time.Duration
	BlacklistMode          BlacklistMode
	BlacklistAutoEnabled   bool
	BlacklistScoreMax      float64
	BlacklistBadVerdicts   int
	BlacklistRetentionDays int
	PaymentDeadline        time.Duration
	PaymentGracePeriod     time.Duration
	MinBalanceMultiplier   float64
}

// MinRequiredBalance is the escrow a downloader must hold before a payment
// message for amount is accepted by the settlement layer.
func (r Reputation) MinRequiredBalance(amount uint64) uint64 {
	return uint64(float64(amount) * r.MinBalanceMultiplier)
}

// Config is the full server configuration.
type Config struct {
	Env             string
	ListenAddr      string
	DatabaseURL     string
	ObserverURL     string
	KeyringFile     string
	PollInterval    time.Duration
	PollConcurrency int
	Reputation      Reputation
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.Atoi(v); err == nil {
			return out
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.ParseFloat(v, 64); err == nil {
			return out
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.ParseBool(v); err == nil {
			return out
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if out, err := time.ParseDuration(v); err == nil {
			return out
		}
	}
	return def
}

// Load reads configuration from the environment, consulting a local .env
// file first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:             getenv("APP_ENV", "development"),
		ListenAddr:      getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ObserverURL:     os.Getenv("CHAIN_OBSERVER_URL"),
		KeyringFile:     os.Getenv("KEYRING_FILE"),
		PollInterval:    getenvDuration("CONFIRM_POLL_INTERVAL", 15*time.Second),
		PollConcurrency: getenvInt("CONFIRM_POLL_CONCURRENCY", 4),
		Reputation: Reputation{
			ConfirmationThreshold:  getenvInt("CONFIRMATION_THRESHOLD", 3),
			ConfirmationTimeout:    getenvDuration("CONFIRMATION_TIMEOUT", time.Hour),
			MaturityThreshold:      getenvInt("MATURITY_THRESHOLD", 100),
			DecayHalfLifeDays:      getenvFloat("DECAY_HALF_LIFE_DAYS", 90),
			VerdictRetentionDays:   getenvInt("VERDICT_RETENTION_DAYS", 365),
			MaxVerdictSize:         getenvInt("MAX_VERDICT_SIZE", 4096),
			CacheTTL:               getenvDuration("CACHE_TTL", 5*time.Minute),
			BlacklistMode:          BlacklistMode(getenv("BLACKLIST_MODE", string(BlacklistAutomatic))),
			BlacklistAutoEnabled:   getenvBool("BLACKLIST_AUTO_ENABLED", true),
			BlacklistScoreMax:      getenvFloat("BLACKLIST_SCORE_THRESHOLD", 0.2),
			BlacklistBadVerdicts:   getenvInt("BLACKLIST_BAD_VERDICTS", 3),
			BlacklistRetentionDays: getenvInt("BLACKLIST_RETENTION_DAYS", 30),
			PaymentDeadline:        getenvDuration("PAYMENT_DEADLINE", 10*time.Minute),
			PaymentGracePeriod:     getenvDuration("PAYMENT_GRACE_PERIOD", time.Minute),
			MinBalanceMultiplier:   getenvFloat("MIN_BALANCE_MULTIPLIER", 1.5),
		},
	}

	switch cfg.Reputation.BlacklistMode {
	case BlacklistManual, BlacklistAutomatic, BlacklistHybrid:
	default:
		return cfg, fmt.Errorf("invalid BLACKLIST_MODE %q", cfg.Reputation.BlacklistMode)
	}
	if cfg.DatabaseURL == "" {
		return cfg, ErrDatabaseURLNotSet
	}
	return cfg, nil
}
