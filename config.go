package rpcsession

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the tunables spec.md §6's operation list leaves implicit:
// connect retry policy and dial timeout (spec.md §4.5 step 2a). Loaded
// from TOML the way danmuck-edgectl's internal/config.LoadGhostConfig
// loads its own config: read file, unmarshal, apply defaults, validate.
type Config struct {
	ConnectRetryMax     int           `toml:"connect_retry_max"`
	ConnectRetryBackoff time.Duration `toml:"connect_retry_backoff"`
	DialTimeout         time.Duration `toml:"dial_timeout"`
}

// DefaultConfig mirrors the defaults Make() applies internally, exposed so
// callers building a Config by hand (or overlaying it with viper, as
// cmd/rpcsession-demo does) have a documented baseline.
func DefaultConfig() Config {
	return Config{
		ConnectRetryMax:     5,
		ConnectRetryBackoff: 10 * time.Millisecond,
		DialTimeout:         10 * time.Second,
	}
}

// LoadConfig reads a TOML file at path, filling in DefaultConfig for any
// field left at its zero value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("rpcsession: config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("rpcsession: config parse failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects nonsensical tunables before they reach a Session.
func (c Config) Validate() error {
	if c.ConnectRetryMax < 0 {
		return fmt.Errorf("rpcsession: connect_retry_max must be >= 0, got %d", c.ConnectRetryMax)
	}
	if c.ConnectRetryBackoff < 0 {
		return fmt.Errorf("rpcsession: connect_retry_backoff must be >= 0, got %s", c.ConnectRetryBackoff)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("rpcsession: dial_timeout must be > 0, got %s", c.DialTimeout)
	}
	return nil
}
