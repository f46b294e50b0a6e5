package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations.
	ShortHTTPTimeout = 10 * time.Second

	// ServerReadHeaderTimeout bounds header reads on the fake API server.
	ServerReadHeaderTimeout = 5 * time.Second

	// ServerShutdownTimeout bounds graceful shutdown of the fake API server.
	ServerShutdownTimeout = 10 * time.Second
)

// Retry limits. Retries are opt-in: the default client never retries.
const (
	// DefaultRetryMax is the default maximum number of retries.
	DefaultRetryMax = 0

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second
)

// Pagination defaults applied by the fake API when a criteria carries none.
const (
	// DefaultPageSize is the server side default limit.
	DefaultPageSize = 25

	// MaxPageSize caps a single search page.
	MaxPageSize = 500
)

// Context propagation headers.
const (
	HeaderLanguageID = "X-Language-Id"
	HeaderCurrencyID = "X-Currency-Id"
	HeaderVersionID  = "X-Version-Id"
	HeaderAPIVersion = "X-Api-Version"
)

// API paths.
const (
	// APIPathSearch prefixes a repository source for criteria searches.
	APIPathSearch = "/search"

	// APIPathSearchIDs prefixes a repository source for id-only searches.
	APIPathSearchIDs = "/search-ids"

	// APIPathSync is the batch write endpoint.
	APIPathSync = "/_action/sync"

	// APIPathToken is the OAuth2 token endpoint.
	APIPathToken = "/oauth/token"

	// QueryParamCriteria carries the encoded criteria on single-entity reads.
	QueryParamCriteria = "criteria"
)

// Sync actions.
const (
	SyncActionUpsert = "upsert"
	SyncActionDelete = "delete"
)

// Circuit breaker defaults.
const (
	// CircuitBreakerThreshold is the failure threshold for circuit breaker.
	CircuitBreakerThreshold = 5

	// CircuitBreakerSuccessThreshold is the success threshold for circuit breaker.
	CircuitBreakerSuccessThreshold = 2

	// CircuitBreakerTimeout is the timeout for circuit breaker.
	CircuitBreakerTimeout = 30 * time.Second

	// StatusOpen indicates an open state.
	StatusOpen = "open"

	// StatusHalfOpen indicates a half-open state.
	StatusHalfOpen = "half-open"

	// StatusClosed indicates a closed state.
	StatusClosed = "closed"
)

// Server error codes emitted by the fake API and recognized by the client.
const (
	ErrorCodeNotFound         = "NOT_FOUND"
	ErrorCodeRequired         = "VALUE_REQUIRED"
	ErrorCodeUnique           = "UNIQUE_VIOLATION"
	ErrorCodeInvalid          = "INVALID_VALUE"
	ErrorCodeUnknownEntity    = "UNKNOWN_ENTITY"
	ErrorCodeMalformedRequest = "MALFORMED_REQUEST"
	ErrorCodeDuplicateID      = "DUPLICATE_ID"
)

// Misc.
const (
	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "entity-client/1.0"

	// DefaultAPIVersion is used by the CLI when none is configured.
	DefaultAPIVersion = "3"

	// DefaultLanguageID is the system language of the fake API.
	DefaultLanguageID = "2fbb5fe2e29a4d70aa5854ce7ce3e20b"

	// DefaultServeAddr is the listen address of the fake API server.
	DefaultServeAddr = "127.0.0.1:8000"

	// DefaultEventSubjectPrefix prefixes NATS write event subjects.
	DefaultEventSubjectPrefix = "entity"
)
