// Package config loads engine settings from defaults, an optional YAML file
// and INKWELL_-prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/inkwellhq/inkwell-sync/internal/blob"
)

// Config holds runtime settings for the sync engine.
type Config struct {
	// LocalDBPath is the SQLite file backing the local store.
	LocalDBPath string `mapstructure:"local_db_path"`

	// RemoteDSN is the Postgres connection string of the multi-device
	// backend. Also used by the change-feed subscriber.
	RemoteDSN string `mapstructure:"remote_dsn"`

	// BlobDir is the local directory mirroring remote blob storage.
	BlobDir string `mapstructure:"blob_dir"`

	// AuthToken is the session access token; TokenSecret verifies it.
	AuthToken   string `mapstructure:"auth_token"`
	TokenSecret string `mapstructure:"token_secret"`

	// ProbeInterval is the connectivity poll period.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// LedgerRetention bounds deletion-ledger growth on both sides.
	LedgerRetention time.Duration `mapstructure:"ledger_retention"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	S3 blob.S3Config `mapstructure:"s3"`
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("local_db_path", "inkwell.db")
	v.SetDefault("blob_dir", "blobs")
	v.SetDefault("probe_interval", 30*time.Second)
	v.SetDefault("ledger_retention", 30*24*time.Hour)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("s3.region", "us-east-1")

	// Declared empty so the keys are visible to Unmarshal when provided
	// through the environment alone.
	for _, key := range []string{
		"remote_dsn", "auth_token", "token_secret",
		"s3.bucket", "s3.access_key", "s3.secret_key", "s3.endpoint",
	} {
		v.SetDefault(key, "")
	}

	v.SetEnvPrefix("INKWELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RemoteDSN == "" {
		return errors.New("remote_dsn is required")
	}
	if c.AuthToken == "" {
		return errors.New("auth_token is required")
	}
	if c.TokenSecret == "" {
		return errors.New("token_secret is required")
	}
	if c.ProbeInterval <= 0 {
		return errors.New("probe_interval must be positive")
	}
	return nil
}
