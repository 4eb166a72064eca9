package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"pricetracker/internal/coingecko"
	"pricetracker/internal/coordinator"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/freecurrency"
	"pricetracker/internal/fx"
	"pricetracker/internal/metalprice"
	"pricetracker/internal/ratelimit"
)

// Config holds all configuration for the price tracker.
type Config struct {
	// API keys. The CoinGecko key is an optional demo key.
	FreecurrencyAPIKey string `mapstructure:"freecurrency_api_key"`
	CoingeckoAPIKey    string `mapstructure:"coingecko_api_key"`
	MetalpriceAPIKey   string `mapstructure:"metalprice_api_key"`

	// Base URLs for API endpoints (configurable for testing)
	FreecurrencyBaseURL string `mapstructure:"freecurrency_base_url"`
	CoingeckoBaseURL    string `mapstructure:"coingecko_base_url"`
	MetalpriceBaseURL   string `mapstructure:"metalprice_base_url"`

	// Home currency every price is displayed in
	HomeCurrency string `mapstructure:"home_currency"`

	// Items to fetch
	CurrencyBase        string   `mapstructure:"currency_base"`
	CurrencyTargets     []string `mapstructure:"currency_targets"`
	CryptoIDs           []string `mapstructure:"crypto_ids"`
	CryptoIncludeChange bool     `mapstructure:"crypto_include_change"`
	MetalSymbols        []string `mapstructure:"metal_symbols"`

	// Polling and HTTP behaviour
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RetryCount   int           `mapstructure:"retry_count"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	FXCacheTTL   time.Duration `mapstructure:"fx_cache_ttl"`

	// Requests per second per API, zero or less disables limiting
	FreecurrencyRateLimit float64 `mapstructure:"freecurrency_rate_limit"`
	CoingeckoRateLimit    float64 `mapstructure:"coingecko_rate_limit"`
	MetalpriceRateLimit   float64 `mapstructure:"metalprice_rate_limit"`

	LogLevel string `mapstructure:"log_level"`
}

// Defaults for optional settings.
var (
	DefaultCurrencyTargets = []string{"USD", "EUR", "GBP", "JPY", "CNY", "AUD", "CAD", "CHF", "INR"}
	DefaultCryptoIDs       = []string{"bitcoin", "ethereum", "dogecoin", "pepe", "trumpcoin"}
	DefaultMetalSymbols    = []string{"XAU", "XAG", "XPT", "XPD"}
)

// keys maps every setting to the environment variable it is read from.
var keys = map[string]string{
	"freecurrency_api_key":    "FREECURRENCY_API_KEY",
	"coingecko_api_key":       "COINGECKO_API_KEY",
	"metalprice_api_key":      "METALPRICE_API_KEY",
	"freecurrency_base_url":   "FREECURRENCY_BASE_URL",
	"coingecko_base_url":      "COINGECKO_BASE_URL",
	"metalprice_base_url":     "METALPRICE_BASE_URL",
	"home_currency":           "HOME_CURRENCY",
	"currency_base":           "CURRENCY_BASE",
	"currency_targets":        "CURRENCY_TARGETS",
	"crypto_ids":              "CRYPTO_IDS",
	"crypto_include_change":   "CRYPTO_INCLUDE_CHANGE",
	"metal_symbols":           "METAL_SYMBOLS",
	"poll_interval":           "POLL_INTERVAL",
	"retry_count":             "RETRY_COUNT",
	"http_timeout":            "HTTP_TIMEOUT",
	"fx_cache_ttl":            "FX_CACHE_TTL",
	"freecurrency_rate_limit": "FREECURRENCY_RATE_LIMIT",
	"coingecko_rate_limit":    "COINGECKO_RATE_LIMIT",
	"metalprice_rate_limit":   "METALPRICE_RATE_LIMIT",
	"log_level":               "LOG_LEVEL",
}

// Load reads configuration from environment variables, a .env file and an
// optional config file. Environment variables take precedence over config
// file values.
//
// configFile names an explicit YAML file; when empty, config.yaml is looked
// up in the working directory and in $HOME/.pricetracker and skipped if
// absent.
//
// Required environment variables:
//   - FREECURRENCY_API_KEY
//   - METALPRICE_API_KEY
func Load(configFile string) (*Config, error) {
	loadDotEnv()

	v := viper.New()

	// Set defaults
	v.SetDefault("freecurrency_base_url", freecurrency.DefaultBaseURL)
	v.SetDefault("coingecko_base_url", coingecko.DefaultBaseURL)
	v.SetDefault("metalprice_base_url", metalprice.DefaultBaseURL)
	v.SetDefault("home_currency", "RUB")
	v.SetDefault("currency_base", "USD")
	v.SetDefault("currency_targets", DefaultCurrencyTargets)
	v.SetDefault("crypto_ids", DefaultCryptoIDs)
	v.SetDefault("crypto_include_change", true)
	v.SetDefault("metal_symbols", DefaultMetalSymbols)
	v.SetDefault("poll_interval", coordinator.DefaultInterval)
	v.SetDefault("retry_count", fetcher.DefaultRetryCount)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("fx_cache_ttl", fx.DefaultTTL)

	limits := ratelimit.Defaults()
	v.SetDefault("freecurrency_rate_limit", limits[ratelimit.APIFreeCurrency])
	v.SetDefault("coingecko_rate_limit", limits[ratelimit.APICoinGecko])
	v.SetDefault("metalprice_rate_limit", limits[ratelimit.APIMetalPrice])
	v.SetDefault("log_level", "info")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pricetracker")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports every missing or invalid setting in one error.
func (c *Config) Validate() error {
	var missing []string
	if c.FreecurrencyAPIKey == "" {
		missing = append(missing, "FREECURRENCY_API_KEY")
	}
	if c.MetalpriceAPIKey == "" {
		missing = append(missing, "METALPRICE_API_KEY")
	}

	var invalid []string
	if len(c.HomeCurrency) != 3 {
		invalid = append(invalid, fmt.Sprintf("HOME_CURRENCY %q is not a 3-letter code", c.HomeCurrency))
	}
	if c.CurrencyBase != "" && len(c.CurrencyBase) != 3 {
		invalid = append(invalid, fmt.Sprintf("CURRENCY_BASE %q is not a 3-letter code", c.CurrencyBase))
	}
	if c.PollInterval <= 0 {
		invalid = append(invalid, fmt.Sprintf("POLL_INTERVAL %s must be positive", c.PollInterval))
	}
	if c.RetryCount < 0 {
		invalid = append(invalid, fmt.Sprintf("RETRY_COUNT %d must not be negative", c.RetryCount))
	}
	if len(c.CurrencyTargets) == 0 && len(c.CryptoIDs) == 0 && len(c.MetalSymbols) == 0 {
		invalid = append(invalid, "nothing to track: CURRENCY_TARGETS, CRYPTO_IDS and METAL_SYMBOLS are all empty")
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required configuration: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		parts = append(parts, fmt.Sprintf("invalid configuration: %s", strings.Join(invalid, "; ")))
	}
	if len(parts) > 0 {
		return errors.New(strings.Join(parts, "; "))
	}
	return nil
}

func (c *Config) normalize() {
	c.HomeCurrency = strings.ToUpper(strings.TrimSpace(c.HomeCurrency))
	c.CurrencyBase = strings.ToUpper(strings.TrimSpace(c.CurrencyBase))
	c.CurrencyTargets = cleanList(c.CurrencyTargets)
	c.CryptoIDs = cleanList(c.CryptoIDs)
	c.MetalSymbols = cleanList(c.MetalSymbols)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// cleanList trims entries and drops empty ones, so "USD, EUR," reads as
// two codes.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// loadDotEnv loads .env from the working directory and from the directory
// of the executable. Variables already set are never overridden.
func loadDotEnv() {
	_ = godotenv.Load()

	if execPath, err := os.Executable(); err == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(execPath), ".env"))
	}
}
