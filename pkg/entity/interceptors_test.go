package entity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields map[string]interface{}) { l.record("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields map[string]interface{})  { l.record("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields map[string]interface{})  { l.record("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields map[string]interface{}) { l.record("error", msg, fields) }

func TestInterceptorChain_RequestInterceptors(t *testing.T) {
	t.Parallel()

	chain := NewInterceptorChain()
	ctx := context.Background()

	var executionOrder []string

	chain.AddRequestInterceptor(func(ctx context.Context, req *Request) error {
		executionOrder = append(executionOrder, "first")

		return nil
	})

	chain.AddRequestInterceptor(func(ctx context.Context, req *Request) error {
		executionOrder = append(executionOrder, "second")

		return nil
	})

	req := &Request{
		Method: http.MethodPost,
		Path:   "/search/user",
	}

	err := chain.ExecuteRequestInterceptors(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, executionOrder)
}

func TestInterceptorChain_StopsOnError(t *testing.T) {
	t.Parallel()

	chain := NewInterceptorChain()
	boom := errors.New("boom")
	called := false

	chain.AddRequestInterceptor(func(ctx context.Context, req *Request) error { return boom })
	chain.AddRequestInterceptor(func(ctx context.Context, req *Request) error {
		called = true

		return nil
	})

	err := chain.ExecuteRequestInterceptors(context.Background(), &Request{})
	require.ErrorIs(t, err, boom)
	assert.False(t, called)

	var nilChain *InterceptorChain
	require.NoError(t, nilChain.ExecuteRequestInterceptors(context.Background(), &Request{}))
	require.NoError(t, nilChain.ExecuteResponseInterceptors(context.Background(), &Request{}, &Response{}))
}

func TestInterceptorChain_ResponseInterceptors(t *testing.T) {
	t.Parallel()

	chain := NewInterceptorChain()
	ctx := context.Background()

	var executionOrder []string

	chain.AddResponseInterceptor(func(ctx context.Context, req *Request, resp *Response) error {
		executionOrder = append(executionOrder, "first")

		return nil
	})

	chain.AddResponseInterceptor(func(ctx context.Context, req *Request, resp *Response) error {
		executionOrder = append(executionOrder, "second")

		return nil
	})

	req := &Request{Method: http.MethodGet, Path: "/user/u1"}
	resp := &Response{StatusCode: http.StatusOK}

	err := chain.ExecuteResponseInterceptors(ctx, req, resp)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, executionOrder)
}

func TestHeaderInterceptor(t *testing.T) {
	t.Parallel()

	headers := map[string]string{
		"X-Custom-Header": "custom-value",
		"X-Request-ID":    "123456",
	}

	interceptor := HeaderInterceptor(headers)
	req := &Request{Method: http.MethodGet, Path: "/user/u1"}

	err := interceptor(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "custom-value", req.Headers.Get("X-Custom-Header"))
	assert.Equal(t, "123456", req.Headers.Get("X-Request-ID"))
}

func TestAuthenticationInterceptor(t *testing.T) {
	t.Parallel()

	interceptor := AuthenticationInterceptor(func(ctx context.Context) (string, error) {
		return "test-token", nil
	})

	req := &Request{Method: http.MethodGet, Path: "/user/u1"}

	err := interceptor(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", req.Headers.Get("Authorization"))

	failing := AuthenticationInterceptor(func(ctx context.Context) (string, error) {
		return "", errors.New("token expired")
	})

	err = failing(context.Background(), &Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")
}

func TestLoggingInterceptors(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	req := &Request{Method: http.MethodPost, Path: "/search/user", Entity: "user", Operation: "search"}

	require.NoError(t, LoggingInterceptor(logger)(context.Background(), req))
	require.NoError(t, LoggingResponseInterceptor(logger)(context.Background(), req, &Response{StatusCode: http.StatusOK}))
	require.NoError(t, LoggingResponseInterceptor(logger)(context.Background(), req, &Response{Error: errors.New("refused")}))

	require.Len(t, logger.entries, 3)
	assert.Equal(t, "API Request", logger.entries[0].msg)
	assert.Equal(t, "search", logger.entries[0].fields["operation"])
	assert.Equal(t, "debug", logger.entries[1].level)
	assert.Equal(t, http.StatusOK, logger.entries[1].fields["status_code"])
	assert.Equal(t, "error", logger.entries[2].level)
	assert.Equal(t, "refused", logger.entries[2].fields["error"])
}

func TestRateLimitInterceptor(t *testing.T) {
	t.Parallel()

	_, err := RateLimitInterceptor(0, 1)
	require.ErrorIs(t, err, ErrRateLimiterRequired)

	interceptor, err := RateLimitInterceptor(1, 1)
	require.NoError(t, err)

	require.NoError(t, interceptor(context.Background(), &Request{}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = interceptor(ctx, &Request{})
	require.Error(t, err, "the second token is not available within the deadline")
}

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	breaker := NewCircuitBreaker(&CircuitBreakerConfig{
		Threshold:        2,
		Timeout:          100 * time.Millisecond,
		SuccessThreshold: 1,
	})
	breaker.now = func() time.Time { return current }

	requestInterceptor := CircuitBreakerRequestInterceptor(breaker)
	responseInterceptor := CircuitBreakerResponseInterceptor(breaker)

	ctx := context.Background()
	req := &Request{Method: http.MethodGet, Path: "/user/u1"}

	require.NoError(t, requestInterceptor(ctx, req))
	assert.Equal(t, "closed", breaker.State())

	require.NoError(t, responseInterceptor(ctx, req, &Response{StatusCode: http.StatusNotFound}))
	assert.Equal(t, "closed", breaker.State(), "client errors are not failures")

	for i := 0; i < 2; i++ {
		require.NoError(t, responseInterceptor(ctx, req, &Response{StatusCode: http.StatusInternalServerError}))
	}

	assert.Equal(t, "open", breaker.State())
	require.ErrorIs(t, requestInterceptor(ctx, req), ErrCircuitBreakerOpen)

	current = current.Add(150 * time.Millisecond)

	require.NoError(t, requestInterceptor(ctx, req))
	assert.Equal(t, "half-open", breaker.State())

	require.NoError(t, responseInterceptor(ctx, req, &Response{StatusCode: http.StatusOK}))
	assert.Equal(t, "closed", breaker.State())
	require.NoError(t, requestInterceptor(ctx, req))
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	breaker := NewCircuitBreaker(&CircuitBreakerConfig{Threshold: 1, Timeout: time.Second, SuccessThreshold: 2})
	breaker.now = func() time.Time { return current }

	requestInterceptor := CircuitBreakerRequestInterceptor(breaker)
	responseInterceptor := CircuitBreakerResponseInterceptor(breaker)
	ctx := context.Background()

	require.NoError(t, responseInterceptor(ctx, &Request{}, &Response{Error: errors.New("refused")}))
	assert.Equal(t, "open", breaker.State())

	current = current.Add(2 * time.Second)
	require.NoError(t, requestInterceptor(ctx, &Request{}))

	require.NoError(t, responseInterceptor(ctx, &Request{}, &Response{StatusCode: http.StatusBadGateway}))
	assert.Equal(t, "open", breaker.State())
	require.ErrorIs(t, requestInterceptor(ctx, &Request{}), ErrCircuitBreakerOpen)
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	breaker := NewCircuitBreaker(nil)
	assert.Equal(t, 5, breaker.config.Threshold)
	assert.Equal(t, 30*time.Second, breaker.config.Timeout)
	assert.Equal(t, "closed", breaker.State())
}
