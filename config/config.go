// Package config loads the node configuration and the genesis file.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/blockberries/nullspace/ledger"
	"github.com/blockberries/nullspace/logging"
	"github.com/blockberries/nullspace/mempool"
	"github.com/blockberries/nullspace/uploader"
)

// Config is the node configuration file.
type Config struct {
	DataDir        string `toml:"data_dir"`
	GenesisFile    string `toml:"genesis_file"`
	ListenAddress  string `toml:"listen_address"`
	MetricsAddress string `toml:"metrics_address"`
	Environment    string `toml:"environment"`

	Storage   StorageConfig   `toml:"storage"`
	Mempool   mempool.Config  `toml:"mempool"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Uploader  UploaderConfig  `toml:"uploader"`
	Logging   LoggingConfig   `toml:"logging"`
}

type StorageConfig struct {
	CacheMB int `toml:"cache_mb"`
	Handles int `toml:"handles"`
}

// RateLimitConfig bounds transaction submissions per account. A zero
// PerSecond disables the limit.
type RateLimitConfig struct {
	PerSecond   float64 `toml:"per_second"`
	Burst       int     `toml:"burst"`
	MaxAccounts int     `toml:"max_accounts"`
}

type LedgerConfig struct {
	MaxBlockTxs         int `toml:"max_block_txs"`
	SnapshotChunkLeaves int `toml:"snapshot_chunk_leaves"`
}

type UploaderConfig struct {
	QueueSize       int           `toml:"queue_size"`
	MaxRetries      uint64        `toml:"max_retries"`
	InitialInterval time.Duration `toml:"initial_interval"`
	MaxInterval     time.Duration `toml:"max_interval"`
	Sinks           []SinkConfig  `toml:"sinks"`
}

// SinkConfig is one HTTP endpoint committed blocks are posted to.
type SinkConfig struct {
	Name    string        `toml:"name"`
	URL     string        `toml:"url"`
	Timeout time.Duration `toml:"timeout"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Default returns the configuration written by `nullspaced init`.
func Default() *Config {
	return &Config{
		DataDir:        "./nullspace-data",
		GenesisFile:    "genesis.yaml",
		ListenAddress:  "127.0.0.1:26658",
		MetricsAddress: "127.0.0.1:9464",
		Storage:        StorageConfig{CacheMB: 256, Handles: 256},
		Mempool:        mempool.DefaultConfig(),
		RateLimit:      RateLimitConfig{Burst: 1, MaxAccounts: 100_000},
		Ledger: LedgerConfig{
			MaxBlockTxs:         ledger.DefaultMaxBlockTxs,
			SnapshotChunkLeaves: ledger.DefaultSnapshotChunkLeaves,
		},
		Uploader: UploaderConfig{
			QueueSize:       uploader.DefaultQueueSize,
			MaxRetries:      uploader.DefaultMaxRetries,
			InitialInterval: uploader.DefaultInitialInterval,
			MaxInterval:     uploader.DefaultMaxInterval,
		},
		Logging: LoggingConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
	}
}

// Load reads the TOML file at path over the defaults and validates the
// result. Unknown keys are an error. Relative DataDir and GenesisFile
// are resolved against the directory holding the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	base := filepath.Dir(path)
	cfg.DataDir = resolve(base, cfg.DataDir)
	cfg.GenesisFile = resolve(base, cfg.GenesisFile)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Write stores cfg at path, creating parent directories. An existing
// file is never overwritten.
func Write(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate reports every problem with cfg at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		errs = append(errs, fmt.Errorf("listen_address: %w", err))
	}
	if c.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddress); err != nil {
			errs = append(errs, fmt.Errorf("metrics_address: %w", err))
		}
	}
	if c.Mempool.MaxBacklog < 0 || c.Mempool.MaxTransactions < 0 {
		errs = append(errs, errors.New("mempool limits must not be negative"))
	}
	if c.RateLimit.PerSecond < 0 {
		errs = append(errs, errors.New("rate_limit.per_second must not be negative"))
	}
	if c.Ledger.MaxBlockTxs < 0 || c.Ledger.SnapshotChunkLeaves < 0 {
		errs = append(errs, errors.New("ledger limits must not be negative"))
	}
	if c.Uploader.MaxInterval > 0 && c.Uploader.InitialInterval > c.Uploader.MaxInterval {
		errs = append(errs, errors.New("uploader.initial_interval exceeds max_interval"))
	}
	seen := make(map[string]bool)
	for i, s := range c.Uploader.Sinks {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("uploader.sinks[%d]: name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("uploader.sinks[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("uploader.sinks[%d]: url must be an absolute http(s) URL", i))
		}
	}
	return errors.Join(errs...)
}

// LedgerConfig returns the ledger settings.
func (c *Config) LedgerConfig() ledger.Config {
	return ledger.Config{
		Mempool: c.Mempool,
		RateLimit: ledger.RateLimit{
			PerSecond:   c.RateLimit.PerSecond,
			Burst:       c.RateLimit.Burst,
			MaxAccounts: c.RateLimit.MaxAccounts,
		},
		MaxBlockTxs:         c.Ledger.MaxBlockTxs,
		SnapshotChunkLeaves: c.Ledger.SnapshotChunkLeaves,
	}
}

func (c *Config) UploaderConfig() uploader.Config {
	return uploader.Config{
		QueueSize:       c.Uploader.QueueSize,
		MaxRetries:      c.Uploader.MaxRetries,
		InitialInterval: c.Uploader.InitialInterval,
		MaxInterval:     c.Uploader.MaxInterval,
	}
}

func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}
