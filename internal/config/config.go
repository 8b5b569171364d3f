// Package config loads the static engine configuration from a TOML file.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full static engine configuration.
type Config struct {
	RPC    RPCConfig    `toml:"rpc"`
	Vaults VaultsConfig `toml:"vaults"`
	Assets []AssetEntry `toml:"assets"`
	Cycle  CycleConfig  `toml:"cycle"`
	DLQ    DLQConfig    `toml:"dlq"`
}

// RPCConfig holds the Solana endpoint settings.
type RPCConfig struct {
	HTTPEndpoint string `toml:"http_endpoint"`
	WSEndpoint   string `toml:"ws_endpoint"`
	MaxRetries   int    `toml:"max_retries"`
}

// VaultsConfig names the watched custodial accounts and the operator.
type VaultsConfig struct {
	Primary     string `toml:"primary"`
	Secondary   string `toml:"secondary"`
	OperatorKey string `toml:"operator_key"`
}

// AssetEntry pre-registers one revenue-generating asset.
type AssetEntry struct {
	AssetID     string `toml:"asset_id"` // mint address
	DisplayName string `toml:"display_name"`
	FeeAccount  string `toml:"fee_account"` // token account holding pending fees
	IsPrimary   bool   `toml:"is_primary"`
}

// CycleConfig holds orchestration thresholds and intervals.
type CycleConfig struct {
	Interval           duration `toml:"interval"`             // cycle pass ticker
	MinFeeThreshold    uint64   `toml:"min_fee_threshold"`    // lamports, eligibility floor
	MinOperatorBalance uint64   `toml:"min_operator_balance"` // lamports
	KeepBps            uint32   `toml:"keep_bps"`             // keep share in basis points
	SyncWaitInterval   duration `toml:"sync_wait_interval"`
	SyncWaitTimeout    duration `toml:"sync_wait_timeout"`
}

// DLQConfig holds the dead-letter queue limits.
type DLQConfig struct {
	MaxEntries  int      `toml:"max_entries"`
	MaxRetries  int      `toml:"max_retries"`
	MaxAge      duration `toml:"max_age"`
	BackoffBase duration `toml:"backoff_base"`
	MaxBackoff  duration `toml:"max_backoff"`
}

// duration wraps time.Duration so TOML values read as "30s", "1h".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// Duration returns the wrapped time.Duration.
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s has unknown fields %v", path, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the structural invariants of a loaded config.
func (c *Config) Validate() error {
	if c.RPC.HTTPEndpoint == "" {
		return fmt.Errorf("rpc.http_endpoint is required")
	}
	if c.RPC.WSEndpoint == "" {
		return fmt.Errorf("rpc.ws_endpoint is required")
	}
	if c.Vaults.Primary == "" {
		return fmt.Errorf("vaults.primary is required")
	}
	if c.Vaults.OperatorKey == "" {
		return fmt.Errorf("vaults.operator_key is required")
	}
	if c.Cycle.KeepBps > 10000 {
		return fmt.Errorf("cycle.keep_bps %d exceeds 10000", c.Cycle.KeepBps)
	}
	primaries := 0
	seen := make(map[string]struct{}, len(c.Assets))
	for i, a := range c.Assets {
		if a.AssetID == "" {
			return fmt.Errorf("assets[%d].asset_id is required", i)
		}
		if _, dup := seen[a.AssetID]; dup {
			return fmt.Errorf("duplicate asset %s", a.AssetID)
		}
		seen[a.AssetID] = struct{}{}
		if a.FeeAccount == "" {
			return fmt.Errorf("assets[%d].fee_account is required", i)
		}
		if a.IsPrimary {
			primaries++
		}
	}
	if primaries > 1 {
		return fmt.Errorf("at most one primary asset allowed, got %d", primaries)
	}
	return nil
}

// PrimaryAsset returns the primary asset entry, or nil when none is set.
func (c *Config) PrimaryAsset() *AssetEntry {
	for i := range c.Assets {
		if c.Assets[i].IsPrimary {
			return &c.Assets[i]
		}
	}
	return nil
}
