// Package config loads service configuration.
//
// Configuration is read from a YAML file when one is present (environment
// variables referenced as ${NAME} are expanded) and otherwise from the
// environment. A .env file is loaded into the environment by the binaries
// before either path runs.
//
//	cfg := config.LoadOrEnv()
//	db, err := config.InitDB(cfg.Database)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Matching MatchingConfig `yaml:"matching"`
	BankFeed BankFeedConfig `yaml:"bankfeed"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig selects the gorm dialect. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// MatchingConfig holds the auto-reconciliation tolerances.
type MatchingConfig struct {
	AmountTolerance   string `yaml:"amount_tolerance"` // decimal string, default "0.01"
	DateWindowDays    int    `yaml:"date_window_days"` // default 7
	ReferenceTieBreak bool   `yaml:"reference_tie_break"`
}

// BankFeedConfig points at the bank account data API used for feed imports.
type BankFeedConfig struct {
	BaseURL          string        `yaml:"base_url"`
	Token            string        `yaml:"token"`
	Timeout          time.Duration `yaml:"timeout"`
	RetryMax         int           `yaml:"retry_max"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Tolerance parses AmountTolerance, falling back to one cent.
func (m MatchingConfig) Tolerance() decimal.Decimal {
	d, err := decimal.NewFromString(m.AmountTolerance)
	if err != nil || d.IsNegative() {
		return decimal.New(1, -2)
	}
	return d
}

// Load reads and parses the config file, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Matching: MatchingConfig{
			AmountTolerance:   "0.01",
			DateWindowDays:    7,
			ReferenceTieBreak: true,
		},
		BankFeed: BankFeedConfig{
			Timeout:          15 * time.Second,
			RetryMax:         3,
			FailureThreshold: 5,
			Cooldown:         time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	d := Defaults()
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", d.Server.Port),
			CORSOrigins: getEnvList("CORS_ORIGINS", d.Server.CORSOrigins),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", d.Database.Driver),
			DSN:    os.Getenv("DATABASE_URL"),
		},
		Matching: MatchingConfig{
			AmountTolerance:   getEnv("MATCH_AMOUNT_TOLERANCE", d.Matching.AmountTolerance),
			DateWindowDays:    getEnvInt("MATCH_DATE_WINDOW_DAYS", d.Matching.DateWindowDays),
			ReferenceTieBreak: getEnvBool("MATCH_REFERENCE_TIE_BREAK", d.Matching.ReferenceTieBreak),
		},
		BankFeed: BankFeedConfig{
			BaseURL:          os.Getenv("BANKFEED_BASE_URL"),
			Token:            os.Getenv("BANKFEED_TOKEN"),
			Timeout:          getEnvDuration("BANKFEED_TIMEOUT", d.BankFeed.Timeout),
			RetryMax:         getEnvInt("BANKFEED_RETRY_MAX", d.BankFeed.RetryMax),
			FailureThreshold: getEnvInt("BANKFEED_FAILURE_THRESHOLD", d.BankFeed.FailureThreshold),
			Cooldown:         getEnvDuration("BANKFEED_COOLDOWN", d.BankFeed.Cooldown),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", d.Logging.Level),
			Format: getEnv("LOG_FORMAT", d.Logging.Format),
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath(getEnv("CONFIG_PATH", "config.yaml"))
}

// LoadOrEnvWithPath tries to load from path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
