// Package config loads service settings from defaults, an optional YAML
// file, and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     string `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	BaseURL  string `yaml:"base_url"`
	LogLevel string `yaml:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`

	Gotenberg GotenbergConfig `yaml:"gotenberg"`
	Document  DocumentConfig  `yaml:"document"`
	Redis     RedisConfig     `yaml:"redis"`
	Email     EmailConfig     `yaml:"email"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

type GotenbergConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	// Fallback renders a plain PDF locally when Gotenberg is unreachable.
	Fallback bool `yaml:"fallback"`
}

type DocumentConfig struct {
	PreviewPages int           `yaml:"preview_pages"`
	ProgressTTL  time.Duration `yaml:"progress_ttl"`
	// Watermark lines stamped on previews. Empty values keep the built-in text.
	WatermarkText   string `yaml:"watermark_text"`
	WatermarkHeader string `yaml:"watermark_header"`
	WatermarkFooter string `yaml:"watermark_footer"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type EmailConfig struct {
	PostmarkToken string `yaml:"postmark_token"`
	From          string `yaml:"from"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	PriceCents    int64  `yaml:"price_cents"`
	Currency      string `yaml:"currency"`
	ProductName   string `yaml:"product_name"`
}

type ArchiveConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Prefix     string `yaml:"prefix"`
	Passphrase string `yaml:"passphrase"`
}

// Enabled reports whether enough is set to upload archives.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != "" && a.AccessKey != "" && a.SecretKey != "" && a.Passphrase != ""
}

func Default() Config {
	return Config{
		Port:      "8080",
		DBPath:    "cohabit.db",
		BaseURL:   "http://localhost:8080",
		LogLevel:  "info",
		LogFormat: "text",
		Gotenberg: GotenbergConfig{
			URL:      "http://localhost:3000",
			Timeout:  60 * time.Second,
			Fallback: true,
		},
		Document: DocumentConfig{
			PreviewPages: 3,
			ProgressTTL:  10 * time.Minute,
		},
		Email: EmailConfig{From: "agreements@cohabit.ca"},
		Stripe: StripeConfig{
			PriceCents:  24900,
			Currency:    "cad",
			ProductName: "Alberta Cohabitation Agreement",
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			Prefix: "agreements/",
		},
	}
}

// Load builds the configuration. path may be empty; a missing file at a
// non-empty path is an error.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	num64 := func(key string, dst *int64) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("COHABIT_PORT", &cfg.Port)
	str("COHABIT_DB_PATH", &cfg.DBPath)
	str("COHABIT_BASE_URL", &cfg.BaseURL)
	str("COHABIT_LOG_LEVEL", &cfg.LogLevel)
	str("COHABIT_LOG_FORMAT", &cfg.LogFormat)

	str("GOTENBERG_URL", &cfg.Gotenberg.URL)
	dur("GOTENBERG_TIMEOUT", &cfg.Gotenberg.Timeout)
	flag("COHABIT_CONVERTER_FALLBACK", &cfg.Gotenberg.Fallback)
	num("COHABIT_PREVIEW_PAGES", &cfg.Document.PreviewPages)
	dur("COHABIT_PROGRESS_TTL", &cfg.Document.ProgressTTL)
	str("COHABIT_WATERMARK_TEXT", &cfg.Document.WatermarkText)
	str("COHABIT_WATERMARK_HEADER", &cfg.Document.WatermarkHeader)
	str("COHABIT_WATERMARK_FOOTER", &cfg.Document.WatermarkFooter)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)

	str("POSTMARK_TOKEN", &cfg.Email.PostmarkToken)
	str("COHABIT_FROM_EMAIL", &cfg.Email.From)

	str("STRIPE_SECRET_KEY", &cfg.Stripe.SecretKey)
	str("STRIPE_WEBHOOK_SECRET", &cfg.Stripe.WebhookSecret)
	num64("STRIPE_PRICE_CENTS", &cfg.Stripe.PriceCents)

	str("S3_ENDPOINT", &cfg.Archive.Endpoint)
	str("S3_BUCKET", &cfg.Archive.Bucket)
	str("S3_REGION", &cfg.Archive.Region)
	str("S3_ACCESS_KEY", &cfg.Archive.AccessKey)
	str("S3_SECRET_KEY", &cfg.Archive.SecretKey)
	str("COHABIT_ARCHIVE_PASSPHRASE", &cfg.Archive.Passphrase)

	return errors.Join(errs...)
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.Gotenberg.URL == "" && !c.Gotenberg.Fallback {
		errs = append(errs, errors.New("gotenberg url is required when fallback is disabled"))
	}
	if c.Gotenberg.Timeout <= 0 {
		errs = append(errs, errors.New("gotenberg timeout must be positive"))
	}
	if c.Document.PreviewPages < 1 {
		errs = append(errs, errors.New("preview_pages must be at least 1"))
	}
	if c.Stripe.PriceCents <= 0 {
		errs = append(errs, errors.New("stripe price_cents must be positive"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}
