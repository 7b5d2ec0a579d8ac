// Package httpclient builds the shared outbound HTTP client used by the
// auth providers and the admin client: retries with backoff, OpenTelemetry
// span propagation, and an optional circuit breaker around the transport.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sb-console/engine/pkg/resilience"
)

// Config controls retry count, per-request timeout, and circuit breaker
// tuning for a constructed Client.
type Config struct {
	Timeout                 time.Duration `env:"HTTP_CLIENT_TIMEOUT" env-default:"30s"`
	Retries                 int           `env:"HTTP_CLIENT_RETRIES" env-default:"3"`
	UserAgent               string        `env:"HTTP_CLIENT_USER_AGENT" env-default:"sb-console/1.0"`
	CircuitBreakerEnabled   bool          `env:"HTTP_CLIENT_CB_ENABLED" env-default:"true"`
	CircuitBreakerThreshold int64         `env:"HTTP_CLIENT_CB_THRESHOLD" env-default:"5"`
	CircuitBreakerTimeout   time.Duration `env:"HTTP_CLIENT_CB_TIMEOUT" env-default:"30s"`
}

// DefaultConfig returns sensible defaults for an interactive console client.
func DefaultConfig() Config {
	return Config{
		Timeout:                 30 * time.Second,
		Retries:                 3,
		UserAgent:               "sb-console/1.0",
		CircuitBreakerEnabled:   true,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
	}
}

// Client wraps http.Client with retry, tracing, and circuit breaker
// behavior shared by every outbound HTTP call the console makes.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	userAgent      string
}

// New builds a Client with retryablehttp for transient-failure retries, an
// otelhttp transport for span propagation, and, unless disabled, a circuit
// breaker guarding against a broker or identity provider that is down hard.
func New(name string, cfg Config) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil

	baseTransport := retryClient.HTTPClient.Transport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(baseTransport)

	c := &Client{
		httpClient: retryClient.StandardClient(),
		userAgent:  cfg.UserAgent,
	}

	if cfg.CircuitBreakerEnabled {
		c.circuitBreaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             name,
			FailureThreshold: cfg.CircuitBreakerThreshold,
			SuccessThreshold: 2,
			Timeout:          cfg.CircuitBreakerTimeout,
		})
	}

	return c
}

// serverError marks a 5xx response as a circuit breaker failure while still
// letting the caller see the response body.
type serverError struct{ statusCode int }

func (e *serverError) Error() string { return "server error" }

// Do executes req, routing it through the circuit breaker when enabled.
// Only transport errors and 5xx responses count against the breaker; 4xx
// responses are the caller's to interpret (invalid_client, access_denied,
// 404, and friends are not transport failures).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if c.circuitBreaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	err := c.circuitBreaker.Execute(req.Context(), func(ctx context.Context) error {
		var err error
		resp, err = c.httpClient.Do(req.WithContext(ctx))
		if err == nil && resp != nil && resp.StatusCode >= 500 {
			return &serverError{statusCode: resp.StatusCode}
		}
		return err
	})

	if _, ok := err.(*serverError); ok {
		return resp, nil
	}
	return resp, err
}

// CircuitBreakerState reports the breaker's state, or "" if disabled.
func (c *Client) CircuitBreakerState() resilience.State {
	if c.circuitBreaker == nil {
		return ""
	}
	return c.circuitBreaker.State()
}
