package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration: the HTTP/WS listener, the
// persistence backend, the relay identity keypair, and a "defaults"
// RelaySpec section. Defaults is loaded from the config file but no code in
// this module applies it to a relay.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Identity IdentityConfig `mapstructure:"identity"`
	Defaults RelaySpec      `mapstructure:"defaults"`
}

type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AdminKey  string `mapstructure:"admin_key"`
	PublicURL string `mapstructure:"public_url"`
}

// DatabaseConfig selects and configures the sqlx driver. Driver is "sqlite"
// or "postgres"; DSN is the sqlite file path or the postgres connection
// string, depending on Driver.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	// CachePath is where the pebble-backed storage-accounting cache lives
	// (internal/store.StorageCache). Separate from DSN since it's a local
	// KV store regardless of which sqlx driver backs the relational data.
	CachePath string `mapstructure:"cache_path"`
}

// IdentityConfig is the relay process's own Nostr keypair. Its npub is the
// pubkey the NIP-11 document falls back to when a relay row has none set;
// nothing in this module signs events with it.
type IdentityConfig struct {
	Npub string `mapstructure:"npub"`
	Nsec string `mapstructure:"nsec"`
}

var cfg *Config

// Load reads config.yaml (or creates a default one), applies RELAYNEST_*
// environment overrides, and unmarshals into the package-level Config.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/relaynest")
	viper.AddConfigPath("$HOME/.relaynest")

	setDefaults()

	viper.SetEnvPrefix("RELAYNEST")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Info().Msg("No config file found, using defaults")
			if err := createDefaultConfig(); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.Server.AdminKey == "" {
		cfg.Server.AdminKey = generateAdminKey()
		viper.Set("server.admin_key", cfg.Server.AdminKey)
		if err := viper.WriteConfig(); err != nil {
			log.Warn().Err(err).Msg("Could not save generated admin key to config")
		}
	}

	return cfg, nil
}

// Get returns the loaded Config, fataling if Load has not run yet.
func Get() *Config {
	if cfg == nil {
		log.Fatal().Msg("Config not loaded")
	}
	return cfg
}

// ResetForTest installs c as the package-level Config, bypassing Load/
// viper. Exists only for tests that need a Config without a config.yaml on
// disk.
func ResetForTest(c *Config) {
	cfg = c
}

// SaveIdentity records the relay's generated keypair in both the live
// Config and the on-disk file, mirroring Load's admin-key bootstrap.
func SaveIdentity(npub, nsec string) error {
	cfg.Identity.Npub = npub
	cfg.Identity.Nsec = nsec
	viper.Set("identity.npub", npub)
	viper.Set("identity.nsec", nsec)
	return viper.WriteConfig()
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 7447)
	viper.SetDefault("server.admin_key", "")
	viper.SetDefault("server.public_url", "")

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./data/relaynest.db")
	viper.SetDefault("database.cache_path", "./data/storage-cache")

	viper.SetDefault("identity.npub", "")
	viper.SetDefault("identity.nsec", "")

	viper.SetDefault("defaults.max_client_filters", 10)
	viper.SetDefault("defaults.limit_per_filter", 500)
	viper.SetDefault("defaults.max_events_per_hour", 0)
	viper.SetDefault("defaults.created_at_in_past_days", 0)
	viper.SetDefault("defaults.created_at_in_future_sec", 900)
	viper.SetDefault("defaults.free_storage_bytes_value", 500)
	viper.SetDefault("defaults.free_storage_bytes_unit", "MB")
	viper.SetDefault("defaults.full_storage_action", "prune")
	viper.SetDefault("defaults.is_paid_relay", false)
	viper.SetDefault("defaults.cost_to_join", 0)
	viper.SetDefault("defaults.storage_cost_value", 0)
	viper.SetDefault("defaults.storage_cost_unit", "MB")
	viper.SetDefault("defaults.require_auth_events", false)
	viper.SetDefault("defaults.skipped_auth_event_kinds", []int{})
	viper.SetDefault("defaults.forced_auth_event_kinds", []int{})
	viper.SetDefault("defaults.require_auth_filter", false)
	viper.SetDefault("defaults.domain", "")
}

func createDefaultConfig() error {
	configPath := "./config.yaml"

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return viper.SafeWriteConfigAs(configPath)
}

func generateAdminKey() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate admin key")
	}
	return hex.EncodeToString(bytes)
}

// IsFirstRun reports whether no relay private key has been configured yet,
// meaning a fresh identity needs generating.
func IsFirstRun() bool {
	return cfg.Identity.Nsec == ""
}
