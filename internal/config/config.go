// Package config loads binary configuration from the environment. A .env
// file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Telemetry is shared by every binary.
type Telemetry struct {
	LogLevel     string  `envconfig:"LOG_LEVEL" default:"info"`
	ServiceName  string  `envconfig:"OTEL_SERVICE_NAME"`
	OTLPEndpoint string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Environment  string  `envconfig:"OTEL_ENVIRONMENT" default:"local"`
	SampleRatio  float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
}

type Checkout struct {
	Telemetry

	Port string `envconfig:"PORT" default:"8080"`

	// OrdersDBPath is the SQLite file for orders and the checkout log.
	// Empty keeps everything in memory.
	OrdersDBPath string `envconfig:"ORDERS_DB_PATH" default:"checkout.db"`

	// RedisAddr backs carts and the promotion cache. Empty uses memory.
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	PromotionsTTL time.Duration `envconfig:"PROMOTIONS_CACHE_TTL" default:"5m"`

	PromotionsDSN   string `envconfig:"PROMOTIONS_DSN"`
	CatalogSeedFile string `envconfig:"CATALOG_SEED_FILE"`

	PaymentGatewayAddr string        `envconfig:"PAYMENT_GATEWAY_ADDR" default:"localhost:9091"`
	GatewayTimeout     time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"5s"`

	KafkaBrokers     []string `envconfig:"KAFKA_BROKERS"`
	OrderEventsTopic string   `envconfig:"ORDER_EVENTS_TOPIC" default:"order-events"`

	Currency      string `envconfig:"CURRENCY" default:"USD"`
	StoreTimezone string `envconfig:"STORE_TIMEZONE" default:"UTC"`

	ConfirmationURL string `envconfig:"CONFIRMATION_URL" default:"http://localhost:3000/checkout/confirmation"`
	CheckoutURL     string `envconfig:"CHECKOUT_URL" default:"http://localhost:3000/checkout"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Location resolves StoreTimezone.
func (c *Checkout) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.StoreTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: STORE_TIMEZONE %q: %w", c.StoreTimezone, err)
	}
	return loc, nil
}

func (c *Checkout) validate() error {
	if c.GatewayTimeout <= 0 {
		return errors.New("config: GATEWAY_TIMEOUT must be positive")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("config: CURRENCY %q is not an ISO 4217 code", c.Currency)
	}
	if c.PromotionsDSN == "" && c.CatalogSeedFile == "" {
		return errors.New("config: one of PROMOTIONS_DSN or CATALOG_SEED_FILE is required")
	}
	_, err := c.Location()
	return err
}

type Gateway struct {
	Telemetry

	Port      string `envconfig:"PORT" default:"9091"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	// DeclineAbove makes the sandbox decline larger amounts. Zero disables it.
	DeclineAbove  decimal.Decimal `envconfig:"DECLINE_ABOVE" default:"500.00"`
	NotifyURL     string          `envconfig:"NOTIFY_URL"`
	NotifyTimeout time.Duration   `envconfig:"NOTIFY_TIMEOUT" default:"5s"`
}

func LoadCheckout() (*Checkout, error) {
	var cfg Checkout
	if err := load(&cfg); err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "checkout-api"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadGateway() (*Gateway, error) {
	var cfg Gateway
	if err := load(&cfg); err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "payment-gateway"
	}
	if cfg.DeclineAbove.IsNegative() {
		return nil, errors.New("config: DECLINE_ABOVE cannot be negative")
	}
	return &cfg, nil
}

func load(spec any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}
	if err := envconfig.Process("", spec); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
