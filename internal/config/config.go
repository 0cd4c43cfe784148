// Package config loads service configuration from an optional YAML file
// (CONFIG_FILE) and environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payflow"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Service  string         `yaml:"service"`
	Env      string         `yaml:"env"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Payment  PaymentConfig  `yaml:"payment"`
	Payflow  payflow.Config `yaml:"payflow"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// SiteConfig describes the single storefront this process serves.
type SiteConfig struct {
	Code string `yaml:"code"`
	// ReceiptURL and ErrorURL are where browsers returning from the hosted
	// payment page are sent.
	ReceiptURL string `yaml:"receipt_url"`
	ErrorURL   string `yaml:"error_url"`
}

// DatabaseConfig selects the store: PostgreSQL when URL is set, in-memory
// otherwise.
type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

// KafkaConfig enables the fulfillment publisher when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type PaymentConfig struct {
	InitiateTimeout time.Duration `yaml:"initiate_timeout"`
}

func Default() *Config {
	return &Config{
		Service: "minishop-checkout",
		Env:     "dev",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Site: SiteConfig{
			Code:       "EDX",
			ReceiptURL: "/checkout/receipt/",
			ErrorURL:   "/checkout/error/",
		},
		Database: DatabaseConfig{Migrate: true},
		Kafka:    KafkaConfig{Topic: "orders.placed"},
		Payment:  PaymentConfig{InitiateTimeout: 10 * time.Second},
		Payflow: payflow.Config{
			TransactionType: "S",
			TemplateType:    "MINLAYOUT",
			Currency:        "USD",
			Mode:            "TEST",
		},
	}
}

// Load applies, in order: defaults, the YAML file named by CONFIG_FILE (if
// any), then environment overrides. The result is validated.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Service, "SERVICE_NAME")
	setString(&c.Env, "ENV")
	setString(&c.HTTP.Addr, "HTTP_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.File, "LOG_FILE")
	setString(&c.Site.Code, "SITE_CODE")
	setString(&c.Site.ReceiptURL, "RECEIPT_URL")
	setString(&c.Site.ErrorURL, "ERROR_URL")
	setString(&c.Database.URL, "DATABASE_URL")
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = splitCSV(v)
	}
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	setString(&c.Payflow.Secret, "PAYFLOW_SECRET")
	setString(&c.Payflow.Password, "PAYFLOW_PASSWORD")
	setString(&c.Payflow.TokenEndpoint, "PAYFLOW_TOKEN_ENDPOINT")
	setString(&c.Payflow.Endpoint, "PAYFLOW_ENDPOINT")
}

func (c *Config) Validate() error {
	var errs []error
	if c.Service == "" {
		errs = append(errs, errors.New("service name is required"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Site.Code == "" || strings.Contains(c.Site.Code, "-") {
		errs = append(errs, fmt.Errorf("site.code %q must be non-empty and contain no '-'", c.Site.Code))
	}
	if c.Site.ReceiptURL == "" || c.Site.ErrorURL == "" {
		errs = append(errs, errors.New("site.receipt_url and site.error_url are required"))
	}
	if c.Payflow.Secret == "" {
		errs = append(errs, errors.New("payflow.secret is required to authenticate notifications"))
	}
	if c.Payment.InitiateTimeout <= 0 {
		errs = append(errs, errors.New("payment.initiate_timeout must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
