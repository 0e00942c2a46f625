package config

import (
	"os"
	"path/filepath"
	"time"
)

type Price struct {
	Enabled  bool
	URL      string
	Currency string
	Interval time.Duration
}

type Backup struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Enabled reports whether a bucket is configured.
func (b Backup) Enabled() bool { return b.Bucket != "" }

// Config holds runtime settings for the wallet CLI.
type Config struct {
	DataDir     string
	Storage     string
	PostgresDSN string
	LogLevel    string

	DefaultMint     string
	Mints           []string
	EncryptProofs   bool
	AutoAddRestored bool

	QuotePollInterval time.Duration
	TokenPollInterval time.Duration

	RestoreBatch    int
	RestoreMaxEmpty int
	RestoreRate     float64

	MintTimeout     time.Duration
	BreakerFailures uint32

	Price  Price
	Backup Backup
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = defaultDataDir()
	c.Storage = "sqlite"
	c.LogLevel = "info"
	c.AutoAddRestored = true
	c.QuotePollInterval = 10 * time.Second
	c.TokenPollInterval = 30 * time.Second
	c.RestoreBatch = 200
	c.RestoreMaxEmpty = 2
	c.RestoreRate = 10
	c.BreakerFailures = 5
	c.Price = Price{URL: "https://api.coinbase.com", Currency: "USD", Interval: 5 * time.Minute}
	c.Backup = Backup{Region: "us-east-1"}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nutkeeper"
	}
	return filepath.Join(home, ".nutkeeper")
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
