package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stablecore/native/stable"
)

// Config captures the runtime configuration of the stablecoin daemon.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`
	// AuthTokenEnv names the environment variable holding the bearer token
	// required for mutating RPC methods. Empty disables auth.
	AuthTokenEnv string `toml:"AuthTokenEnv"`

	Log        LogConfig          `toml:"log"`
	Oracle     OracleConfig       `toml:"oracle"`
	Risk       RiskConfig         `toml:"risk"`
	Telemetry  TelemetryConfig    `toml:"telemetry"`
	Collateral []CollateralConfig `toml:"collateral"`
}

// LogConfig controls the optional file sink beside stdout logging.
type LogConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// OracleConfig bounds the acceptable age of posted price samples.
type OracleConfig struct {
	MaxAgeSeconds uint64 `toml:"MaxAgeSeconds"`
}

// RiskConfig carries the solvency limits in basis points.
type RiskConfig struct {
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64 `toml:"LiquidationBonusBps"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// CollateralConfig registers one collateral asset and its oracle feed.
type CollateralConfig struct {
	Symbol string `toml:"Symbol"`
	Feed   string `toml:"Feed"`
}

const defaultConfig = `# stablecore daemon configuration
ListenAddress = ":8645"
DataDir = "./stabledata"
Environment = "local"
AuthTokenEnv = "STABLE_RPC_TOKEN"

[log]
File = ""
MaxSizeMB = 100
MaxBackups = 3

[oracle]
MaxAgeSeconds = 3600

[risk]
LiquidationThresholdBps = 5000
LiquidationBonusBps = 1000

[telemetry]
Endpoint = ""
Insecure = true
Metrics = false
Traces = false

[[collateral]]
Symbol = "WETH"
Feed = "eth-usd"

[[collateral]]
Symbol = "WBTC"
Feed = "btc-usd"
`

// Load reads the configuration from path, creating a commented default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8645"
	}
	if c.Oracle.MaxAgeSeconds == 0 {
		c.Oracle.MaxAgeSeconds = 3600
	}
	if c.Risk.LiquidationThresholdBps == 0 {
		c.Risk.LiquidationThresholdBps = 5000
	}
	if c.Risk.LiquidationBonusBps == 0 {
		c.Risk.LiquidationBonusBps = 1000
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	params := c.RiskParameters()
	if err := params.Validate(); err != nil {
		return err
	}
	if len(c.Collateral) == 0 {
		return fmt.Errorf("at least one collateral asset must be configured")
	}
	seen := make(map[string]struct{}, len(c.Collateral))
	for _, asset := range c.Collateral {
		symbol := strings.TrimSpace(asset.Symbol)
		if symbol == "" {
			return fmt.Errorf("collateral entry with empty symbol")
		}
		if strings.TrimSpace(asset.Feed) == "" {
			return fmt.Errorf("collateral %s has no feed", symbol)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("collateral %s configured twice", symbol)
		}
		seen[symbol] = struct{}{}
	}
	return nil
}

// Assets converts the configured collateral entries to the engine registry.
func (c *Config) Assets() []stable.CollateralAsset {
	assets := make([]stable.CollateralAsset, 0, len(c.Collateral))
	for _, entry := range c.Collateral {
		assets = append(assets, stable.CollateralAsset{
			Symbol: strings.TrimSpace(entry.Symbol),
			Feed:   strings.TrimSpace(entry.Feed),
		})
	}
	return assets
}

// RiskParameters converts the risk section to engine parameters.
func (c *Config) RiskParameters() stable.RiskParameters {
	return stable.RiskParameters{
		LiquidationThresholdBps: c.Risk.LiquidationThresholdBps,
		LiquidationBonusBps:     c.Risk.LiquidationBonusBps,
	}
}
