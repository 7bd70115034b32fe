package bybit

import (
	"context"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Client wraps the Bybit unified trading API with the retry behavior the
// live execution path needs
type Client struct {
	httpClient *bybit_api.Client
	testnet    bool
	retry      RetryConfig
}

// ClientConfig holds the connection settings for a Bybit client
type ClientConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// RetryConfig bounds the retry loop around transient API failures
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry settings used for live order flow
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
	}
}

// NewClient creates a Bybit client against mainnet or testnet
func NewClient(cfg ClientConfig) *Client {
	baseURL := bybit_api.MAINNET
	if cfg.Testnet {
		baseURL = bybit_api.TESTNET
	}

	return &Client{
		httpClient: bybit_api.NewBybitHttpClient(
			cfg.APIKey,
			cfg.APISecret,
			bybit_api.WithBaseURL(baseURL),
		),
		testnet: cfg.Testnet,
		retry:   DefaultRetryConfig(),
	}
}

// IsTestnet reports whether the client targets the testnet environment
func (c *Client) IsTestnet() bool {
	return c.testnet
}

// withRetry runs fn with exponential backoff on retryable API errors
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	delay := c.retry.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == c.retry.MaxRetries || !isRetryableCode(lastErr) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * c.retry.BackoffFactor)
	}
	return lastErr
}
