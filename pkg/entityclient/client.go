// Package entityclient is the entry point for creating entity repositories.
package entityclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fivetwenty-io/entity-client/internal/auth"
	"github.com/fivetwenty-io/entity-client/internal/constants"
	"github.com/fivetwenty-io/entity-client/internal/events"
	internalhttp "github.com/fivetwenty-io/entity-client/internal/http"
	"github.com/fivetwenty-io/entity-client/internal/repository"
	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

// Static errors for err113 compliance.
var (
	ErrEntityNameRequired    = errors.New("entity name is required")
	ErrTokenEndpointRequired = errors.New("an endpoint is required to request access tokens")
)

// Config configures a Factory. The zero value is usable: requests then take
// their endpoint from the APIContext of each call.
type Config struct {
	// Endpoint, LanguageID, CurrencyID, APIVersion and VersionID seed
	// DefaultContext. They are never read implicitly by a repository call.
	Endpoint   string
	LanguageID string
	CurrencyID string
	APIVersion string
	VersionID  string

	// AccessToken is sent as a Bearer token when set.
	AccessToken string
	// ClientID and ClientSecret obtain tokens with the client credentials
	// grant from Endpoint + "/oauth/token" when AccessToken is empty.
	// Username and Password switch to the password grant.
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	// Headers are added to every request.
	Headers map[string]string
	// UserAgent overrides the default user agent.
	UserAgent string

	// HTTPTimeout bounds every request.
	HTTPTimeout time.Duration
	// HTTPClient replaces the underlying transport client.
	HTTPClient *http.Client
	// RetryMax enables retries of idempotent requests. Zero disables them.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// RateLimit caps requests per second when positive.
	RateLimit float64
	// RateBurst is the token bucket size, at least 1.
	RateBurst int

	// CircuitBreaker enables the circuit breaker when non-nil.
	CircuitBreaker *entity.CircuitBreakerConfig

	// MetricsRegisterer receives request metrics when non-nil.
	MetricsRegisterer prometheus.Registerer

	// Publisher receives write events. When nil and NATSURL is set, events
	// are published to NATS.
	Publisher          entity.WritePublisher
	NATSURL            string
	EventSubjectPrefix string

	// Schema describes associations and read-only fields.
	Schema *entity.Schema

	Logger entity.Logger
	Debug  bool
}

// Factory creates repositories sharing one transport.
type Factory struct {
	config     Config
	httpClient *internalhttp.Client
	publisher  entity.WritePublisher
	closer     func() error
	breaker    *entity.CircuitBreaker
	logger     entity.Logger
}

// New creates a factory from config. A nil config is the zero Config.
func New(config *Config) (*Factory, error) {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}

	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")

	logger := cfg.Logger
	if logger == nil {
		logger = entity.NopLogger{}
	}

	factory := &Factory{config: cfg, logger: logger, publisher: cfg.Publisher}

	chain, err := factory.interceptors()
	if err != nil {
		return nil, err
	}

	opts := []internalhttp.Option{
		internalhttp.WithLogger(logger),
		internalhttp.WithDebug(cfg.Debug),
		internalhttp.WithInterceptors(chain),
	}

	if cfg.UserAgent != "" {
		opts = append(opts, internalhttp.WithUserAgent(cfg.UserAgent))
	}

	if cfg.HTTPClient != nil {
		opts = append(opts, internalhttp.WithHTTPClient(cfg.HTTPClient))
	}

	if cfg.HTTPTimeout > 0 {
		opts = append(opts, internalhttp.WithTimeout(cfg.HTTPTimeout))
	}

	if cfg.RetryMax > 0 {
		waitMin, waitMax := cfg.RetryWaitMin, cfg.RetryWaitMax
		if waitMin <= 0 {
			waitMin = constants.DefaultRetryWaitMin
		}

		if waitMax <= 0 {
			waitMax = constants.DefaultRetryWaitMax
		}

		opts = append(opts, internalhttp.WithRetryConfig(cfg.RetryMax, waitMin, waitMax))
	}

	factory.httpClient = internalhttp.NewClient(cfg.Endpoint, opts...)

	if factory.publisher == nil && cfg.NATSURL != "" {
		publisher, err := events.NewNATSPublisher(&events.NATSConfig{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.EventSubjectPrefix,
			Name:          "entity-client",
		})
		if err != nil {
			return nil, fmt.Errorf("creating write event publisher: %w", err)
		}

		factory.publisher = publisher
		factory.closer = publisher.Close
	}

	return factory, nil
}

func (f *Factory) interceptors() (*entity.InterceptorChain, error) {
	chain := entity.NewInterceptorChain()
	cfg := f.config

	if cfg.RateLimit > 0 {
		limiter, err := entity.RateLimitInterceptor(cfg.RateLimit, cfg.RateBurst)
		if err != nil {
			return nil, fmt.Errorf("configuring rate limit: %w", err)
		}

		chain.AddRequestInterceptor(limiter)
	}

	if cfg.CircuitBreaker != nil {
		f.breaker = entity.NewCircuitBreaker(cfg.CircuitBreaker)
		chain.AddRequestInterceptor(entity.CircuitBreakerRequestInterceptor(f.breaker))
		chain.AddResponseInterceptor(entity.CircuitBreakerResponseInterceptor(f.breaker))
	}

	switch {
	case cfg.AccessToken != "":
		token := cfg.AccessToken
		chain.AddRequestInterceptor(entity.AuthenticationInterceptor(func(context.Context) (string, error) {
			return token, nil
		}))
	case cfg.ClientID != "" || cfg.Username != "":
		if cfg.Endpoint == "" {
			return nil, ErrTokenEndpointRequired
		}

		tokens := auth.NewOAuth2TokenManager(&auth.OAuth2Config{
			TokenURL:     cfg.Endpoint + auth.TokenPath,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Username:     cfg.Username,
			Password:     cfg.Password,
			Scopes:       []string{"write"},
			HTTPClient:   cfg.HTTPClient,
		})
		chain.AddRequestInterceptor(entity.AuthenticationInterceptor(tokens.GetToken))
	}

	if len(cfg.Headers) > 0 {
		chain.AddRequestInterceptor(entity.HeaderInterceptor(cfg.Headers))
	}

	if cfg.MetricsRegisterer != nil {
		metrics, err := entity.NewMetrics(cfg.MetricsRegisterer)
		if err != nil {
			return nil, fmt.Errorf("configuring metrics: %w", err)
		}

		metrics.Attach(chain)
	}

	if cfg.Debug {
		chain.AddRequestInterceptor(entity.LoggingInterceptor(f.logger))
		chain.AddResponseInterceptor(entity.LoggingResponseInterceptor(f.logger))
	}

	return chain, nil
}

// Create returns a repository for entityName. The optional source overrides
// the default endpoint, e.g. a nested "/user/<id>/access-keys" collection.
func (f *Factory) Create(entityName string, source ...string) entity.Repository {
	src := ""
	if len(source) > 0 {
		src = source[0]
	}

	return repository.New(entityName, src, f.httpClient,
		repository.WithSchema(f.config.Schema),
		repository.WithPublisher(f.publisher),
		repository.WithLogger(f.logger),
	)
}

// CreateChecked is Create with an explicit error for an empty name.
func (f *Factory) CreateChecked(entityName string, source ...string) (entity.Repository, error) {
	if entityName == "" {
		return nil, ErrEntityNameRequired
	}

	return f.Create(entityName, source...), nil
}

// ForCollection returns a repository for the nested source of collection.
func (f *Factory) ForCollection(collection *entity.EntityCollection) entity.Repository {
	return f.Create(collection.Entity, collection.Source)
}

// DefaultContext returns the APIContext described by the configuration.
func (f *Factory) DefaultContext() entity.APIContext {
	return entity.APIContext{
		Endpoint:      f.config.Endpoint,
		LanguageID:    f.config.LanguageID,
		CurrencyID:    f.config.CurrencyID,
		APIVersion:    f.config.APIVersion,
		LiveVersionID: f.config.VersionID,
	}
}

// CircuitState returns the circuit breaker state, "" when disabled.
func (f *Factory) CircuitState() string {
	if f.breaker == nil {
		return ""
	}

	return f.breaker.State()
}

// Close releases the event publisher connection.
func (f *Factory) Close() error {
	if f.closer == nil {
		return nil
	}

	return f.closer()
}
