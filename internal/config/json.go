package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/flagx"
	"github.com/dmitrijs2005/nutkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointers
// tell an absent field from a zero one, so a file only overrides what it
// names.
type JsonConfig struct {
	DataDir     *string `json:"data_dir"`
	Storage     *string `json:"storage"`
	PostgresDSN *string `json:"postgres_dsn"`
	LogLevel    *string `json:"log_level"`

	DefaultMint     *string  `json:"default_mint"`
	Mints           []string `json:"mints"`
	EncryptProofs   *bool    `json:"encrypt_proofs"`
	AutoAddRestored *bool    `json:"auto_add_restored"`

	QuotePollInterval *timex.Duration `json:"quote_poll_interval"`
	TokenPollInterval *timex.Duration `json:"token_poll_interval"`

	RestoreBatch    *int     `json:"restore_batch"`
	RestoreMaxEmpty *int     `json:"restore_max_empty"`
	RestoreRate     *float64 `json:"restore_rate"`

	MintTimeout     *timex.Duration `json:"mint_timeout"`
	BreakerFailures *uint32         `json:"breaker_failures"`

	Price *struct {
		Enabled  *bool           `json:"enabled"`
		URL      *string         `json:"url"`
		Currency *string         `json:"currency"`
		Interval *timex.Duration `json:"interval"`
	} `json:"price"`

	Backup *struct {
		Bucket    *string `json:"bucket"`
		Region    *string `json:"region"`
		Endpoint  *string `json:"endpoint"`
		AccessKey *string `json:"access_key"`
		SecretKey *string `json:"secret_key"`
	} `json:"backup"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}

// parseJson overlays cfg with the JSON file named by -c/-config in args.
// Without the flag nothing happens.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("error parsing config %s: %w", path, err)
	}

	set(&cfg.DataDir, jc.DataDir)
	set(&cfg.Storage, jc.Storage)
	set(&cfg.PostgresDSN, jc.PostgresDSN)
	set(&cfg.LogLevel, jc.LogLevel)
	set(&cfg.DefaultMint, jc.DefaultMint)
	if jc.Mints != nil {
		cfg.Mints = jc.Mints
	}
	set(&cfg.EncryptProofs, jc.EncryptProofs)
	set(&cfg.AutoAddRestored, jc.AutoAddRestored)
	setDuration(&cfg.QuotePollInterval, jc.QuotePollInterval)
	setDuration(&cfg.TokenPollInterval, jc.TokenPollInterval)
	set(&cfg.RestoreBatch, jc.RestoreBatch)
	set(&cfg.RestoreMaxEmpty, jc.RestoreMaxEmpty)
	set(&cfg.RestoreRate, jc.RestoreRate)
	setDuration(&cfg.MintTimeout, jc.MintTimeout)
	set(&cfg.BreakerFailures, jc.BreakerFailures)

	if p := jc.Price; p != nil {
		set(&cfg.Price.Enabled, p.Enabled)
		set(&cfg.Price.URL, p.URL)
		set(&cfg.Price.Currency, p.Currency)
		setDuration(&cfg.Price.Interval, p.Interval)
	}
	if b := jc.Backup; b != nil {
		set(&cfg.Backup.Bucket, b.Bucket)
		set(&cfg.Backup.Region, b.Region)
		set(&cfg.Backup.Endpoint, b.Endpoint)
		set(&cfg.Backup.AccessKey, b.AccessKey)
		set(&cfg.Backup.SecretKey, b.SecretKey)
	}
	return nil
}
