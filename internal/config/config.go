package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/orderapi"
	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/tracing"
)

// ServiceName identifies the storefront in logs, metrics and traces.
const ServiceName = "storefront"

// Config holds all configuration for the storefront.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Shell
	ShellHTTPAddr string `env:"SHELL_HTTP_ADDR" envDefault:"127.0.0.1:3000"`

	// Order API
	OrderAPIKey            string `env:"ORDER_API_KEY,notEmpty"`
	OrderCollectionID      string `env:"ORDER_COLLECTION_ID,notEmpty"`
	OrderAPIBaseURL        string `env:"ORDER_API_BASE_URL"`
	OrderAPIAuthScheme     string `env:"ORDER_API_AUTH_SCHEME" envDefault:"raw"`
	OrderAPITimeoutSeconds int    `env:"ORDER_API_TIMEOUT_SECONDS" envDefault:"30"`
	OrderAPIMaxRetries     int    `env:"ORDER_API_MAX_RETRIES" envDefault:"3"`
	RecipientEmail         string `env:"RECIPIENT_EMAIL" envDefault:"buyer@crossmint.com"`

	// Payment settings
	CardCurrency   string `env:"CARD_CURRENCY" envDefault:"usd"`
	CryptoChain    string `env:"CRYPTO_CHAIN" envDefault:"base-sepolia"`
	CryptoCurrency string `env:"CRYPTO_CURRENCY" envDefault:"usdc"`

	// Polling
	PollIntervalMs     int `env:"POLL_INTERVAL_MS" envDefault:"1000"`
	PollTimeoutSeconds int `env:"POLL_TIMEOUT_SECONDS" envDefault:"120"`
	PollMaxAttempts    int `env:"POLL_MAX_ATTEMPTS" envDefault:"0"`

	// Order creation retries
	CreateMaxRetries int `env:"CREATE_MAX_RETRIES" envDefault:"3"`

	// Circuit breaker settings for order API calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Card payments
	StripePaymentMethod string `env:"STRIPE_PAYMENT_METHOD" envDefault:"pm_card_visa"`
	StripeReturnURL     string `env:"STRIPE_RETURN_URL" envDefault:"http://127.0.0.1:3000/api/v1/checkout/status"`
	StripeAPIURL        string `env:"STRIPE_API_URL"`

	// Crypto payments. Without both the crypto widget has no wallet.
	EthRPCURL        string `env:"ETH_RPC_URL"`
	WalletPrivateKey string `env:"WALLET_PRIVATE_KEY"`

	// Kafka. Empty disables analytics events.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads configuration from the given variables.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environ); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if _, _, err := net.SplitHostPort(c.ShellHTTPAddr); err != nil {
		return fmt.Errorf("invalid SHELL_HTTP_ADDR %q: %w", c.ShellHTTPAddr, err)
	}
	switch strings.ToLower(c.OrderAPIAuthScheme) {
	case orderapi.AuthSchemeRaw, orderapi.AuthSchemeBearer:
	default:
		return fmt.Errorf("ORDER_API_AUTH_SCHEME must be %q or %q, got %q",
			orderapi.AuthSchemeRaw, orderapi.AuthSchemeBearer, c.OrderAPIAuthScheme)
	}
	for name, rawURL := range map[string]string{
		"ORDER_API_BASE_URL": c.OrderAPIBaseURL,
		"STRIPE_RETURN_URL":  c.StripeReturnURL,
		"STRIPE_API_URL":     c.StripeAPIURL,
		"ETH_RPC_URL":        c.EthRPCURL,
	} {
		if rawURL == "" {
			continue
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	if c.OrderAPITimeoutSeconds < 1 {
		return fmt.Errorf("ORDER_API_TIMEOUT_SECONDS must be positive, got %d", c.OrderAPITimeoutSeconds)
	}
	if c.OrderAPIMaxRetries < 0 || c.CreateMaxRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	if c.PollIntervalMs < 1 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive, got %d", c.PollIntervalMs)
	}
	if c.PollTimeoutSeconds < 1 {
		return fmt.Errorf("POLL_TIMEOUT_SECONDS must be positive, got %d", c.PollTimeoutSeconds)
	}
	if c.PollMaxAttempts < 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must not be negative, got %d", c.PollMaxAttempts)
	}
	if (c.EthRPCURL == "") != (c.WalletPrivateKey == "") {
		return fmt.Errorf("ETH_RPC_URL and WALLET_PRIVATE_KEY must be set together")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// OrderAPI returns the order API client settings.
func (c *Config) OrderAPI() orderapi.Config {
	return orderapi.Config{
		APIKey:          c.OrderAPIKey,
		BaseURL:         c.OrderAPIBaseURL,
		AuthScheme:      strings.ToLower(c.OrderAPIAuthScheme),
		PollInterval:    time.Duration(c.PollIntervalMs) * time.Millisecond,
		PollTimeout:     time.Duration(c.PollTimeoutSeconds) * time.Second,
		PollMaxAttempts: c.PollMaxAttempts,
	}
}

// HTTPClient returns the transport settings for order API calls.
func (c *Config) HTTPClient() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = time.Duration(c.OrderAPITimeoutSeconds) * time.Second
	cfg.MaxRetries = c.OrderAPIMaxRetries
	return cfg
}

// CircuitBreaker returns the circuit breaker settings for order API calls.
func (c *Config) CircuitBreaker() httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         "order-api",
		MaxRequests:  c.CBMaxRequests,
		Interval:     time.Duration(c.CBInterval) * time.Second,
		Timeout:      time.Duration(c.CBTimeout) * time.Second,
		FailureRatio: c.CBFailureRatio,
		MinRequests:  c.CBMinRequests,
	}
}

// Payment returns the per-method payment settings.
func (c *Config) Payment() domain.PaymentSettings {
	return domain.PaymentSettings{
		CardCurrency:   c.CardCurrency,
		CryptoChain:    c.CryptoChain,
		CryptoCurrency: c.CryptoCurrency,
	}
}

// Tracing returns the OpenTelemetry settings.
func (c *Config) Tracing() tracing.Config {
	cfg := tracing.DefaultConfig(ServiceName)
	cfg.Environment = c.Environment
	cfg.Enabled = c.OTELEnabled
	cfg.OTLPEndpoint = c.OTELEndpoint
	cfg.SampleRate = c.OTELSampleRate
	return cfg
}

// CryptoEnabled reports whether a signing wallet is configured.
func (c *Config) CryptoEnabled() bool {
	return c.EthRPCURL != "" && c.WalletPrivateKey != ""
}
