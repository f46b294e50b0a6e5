package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	entityhttp "github.com/fivetwenty-io/entity-client/internal/http"
	"github.com/fivetwenty-io/entity-client/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLogger for testing.
type MockLogger struct {
	mu   sync.Mutex
	logs []map[string]interface{}
}

func (l *MockLogger) add(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, map[string]interface{}{"level": level, "msg": msg, "fields": fields})
}

func (l *MockLogger) Debug(msg string, fields map[string]interface{}) { l.add("debug", msg, fields) }
func (l *MockLogger) Info(msg string, fields map[string]interface{})  { l.add("info", msg, fields) }
func (l *MockLogger) Warn(msg string, fields map[string]interface{})  { l.add("warn", msg, fields) }
func (l *MockLogger) Error(msg string, fields map[string]interface{}) { l.add("error", msg, fields) }

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Do(t *testing.T) {
	t.Parallel()
	t.Run("successful request", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/user/abc", request.URL.Path)
			assert.Equal(t, "GET", request.Method)
			assert.Equal(t, "application/json", request.Header.Get("Accept"))
			assert.Equal(t, "entity-client/1.0", request.Header.Get("User-Agent"))

			_ = json.NewEncoder(writer).Encode(map[string]interface{}{
				"data": map[string]string{"id": "abc", "username": "admin"},
			})
		}))
		defer server.Close()

		client := entityhttp.NewClient(server.URL)

		resp, err := client.Do(context.Background(), &entityhttp.Request{Method: "GET", Path: "/user/abc"})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var result struct {
			Data map[string]string `json:"data"`
		}

		require.NoError(t, json.Unmarshal(resp.Body, &result))
		assert.Equal(t, "admin", result.Data["username"])
	})

	t.Run("base url override", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/api/user", request.URL.Path)
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := entityhttp.NewClient("http://unused.invalid")

		resp, err := client.Do(context.Background(), &entityhttp.Request{
			Method:  "GET",
			BaseURL: server.URL + "/api/",
			Path:    "/user",
		})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("request with query parameters", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/user/abc", request.URL.Path)
			assert.Equal(t, `{"limit":1}`, request.URL.Query().Get("criteria"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := entityhttp.NewClient(server.URL)

		resp, err := client.Do(context.Background(), &entityhttp.Request{
			Method: "GET",
			Path:   "/user/abc",
			Query:  url.Values{"criteria": []string{`{"limit":1}`}},
		})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("request with body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "POST", request.Method)
			assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

			var body map[string]string

			_ = json.NewDecoder(request.Body).Decode(&body)
			assert.Equal(t, "admin", body["username"])

			writer.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client := entityhttp.NewClient(server.URL)

		resp, err := client.Do(context.Background(), &entityhttp.Request{
			Method: "POST",
			Path:   "/user",
			Body:   map[string]string{"username": "admin"},
		})
		require.NoError(t, err)
		assert.Equal(t, 201, resp.StatusCode)
	})

	t.Run("error response", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusNotFound)

			_ = json.NewEncoder(writer).Encode(entity.ResponseError{
				Errors: []entity.APIError{{Status: "404", Code: "NOT_FOUND", Title: "Not Found", Detail: "user not found"}},
			})
		}))
		defer server.Close()

		client := entityhttp.NewClient(server.URL)

		resp, err := client.Do(context.Background(), &entityhttp.Request{Method: "GET", Path: "/user/missing"})
		require.Error(t, err)
		assert.Equal(t, 404, resp.StatusCode)

		errResp := &entity.ResponseError{}
		require.ErrorAs(t, err, &errResp)
		assert.Len(t, errResp.Errors, 1)
		assert.Equal(t, "NOT_FOUND", errResp.Errors[0].Code)
	})

	t.Run("error response without document", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusBadGateway)
			_, _ = writer.Write([]byte("upstream down"))
		}))
		defer server.Close()

		client := entityhttp.NewClient(server.URL)

		resp, err := client.Do(context.Background(), &entityhttp.Request{Method: "GET", Path: "/user"})
		require.ErrorIs(t, err, entityhttp.ErrHTTPStatus)
		assert.Equal(t, 502, resp.StatusCode)
		assert.Contains(t, err.Error(), "upstream down")
	})

	t.Run("custom headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "lang-1", request.Header.Get("X-Language-Id"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := entityhttp.NewClient(server.URL)

		resp, err := client.Do(context.Background(), &entityhttp.Request{
			Method:  "GET",
			Path:    "/user",
			Headers: map[string]string{"X-Language-Id": "lang-1"},
		})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("with debug logging", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(writer).Encode(map[string]string{"result": "ok"})
		}))
		defer server.Close()

		logger := &MockLogger{}
		client := entityhttp.NewClient(server.URL, entityhttp.WithLogger(logger), entityhttp.WithDebug(true))

		_, err := client.Do(context.Background(), &entityhttp.Request{Method: "GET", Path: "/user"})
		require.NoError(t, err)

		require.Len(t, logger.logs, 2)
		assert.Equal(t, "HTTP Request", logger.logs[0]["msg"])
		assert.Equal(t, "HTTP Response", logger.logs[1]["msg"])
	})
}

func TestClient_Interceptors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "Bearer secret", request.Header.Get("Authorization"))
		assert.Equal(t, "yes", request.Header.Get("X-Intercepted"))
		writer.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var (
		seen   entity.Request
		status int
	)

	chain := entity.NewInterceptorChain()
	chain.AddRequestInterceptor(entity.HeaderInterceptor(map[string]string{"X-Intercepted": "yes"}))
	chain.AddRequestInterceptor(entity.AuthenticationInterceptor(func(context.Context) (string, error) {
		return "secret", nil
	}))
	chain.AddResponseInterceptor(func(ctx context.Context, req *entity.Request, resp *entity.Response) error {
		seen = *req
		status = resp.StatusCode

		return nil
	})

	client := entityhttp.NewClient(server.URL, entityhttp.WithInterceptors(chain))

	_, err := client.Do(context.Background(), &entityhttp.Request{
		Method:    "DELETE",
		Path:      "/user/abc",
		Entity:    "user",
		Operation: "delete",
	})
	require.NoError(t, err)
	assert.Equal(t, "user", seen.Entity)
	assert.Equal(t, "delete", seen.Operation)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestClient_RequestInterceptorFailureAbortsRequest(t *testing.T) {
	t.Parallel()

	var called atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		called.Store(true)
	}))
	defer server.Close()

	boom := errors.New("boom")

	chain := entity.NewInterceptorChain()
	chain.AddRequestInterceptor(func(context.Context, *entity.Request) error { return boom })

	client := entityhttp.NewClient(server.URL, entityhttp.WithInterceptors(chain))

	_, err := client.Do(context.Background(), &entityhttp.Request{Method: http.MethodGet, Path: "/user"})
	require.ErrorIs(t, err, boom)
	assert.False(t, called.Load())
}

func TestClient_Methods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method string
		body   interface{}
		want   string
	}{
		{method: http.MethodGet},
		{method: http.MethodPost, body: map[string]string{"key": "value"}, want: `{"key":"value"}`},
		{method: http.MethodPut, body: map[string]string{"key": "value"}, want: `{"key":"value"}`},
		{method: http.MethodPatch, body: map[string]string{"key": "value"}, want: `{"key":"value"}`},
		{method: http.MethodDelete},
	}

	for _, testCase := range tests {
		t.Run(testCase.method, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				assert.Equal(t, testCase.method, request.Method)
				assert.Equal(t, "/test", request.URL.Path)

				body, err := io.ReadAll(request.Body)
				assert.NoError(t, err)

				if testCase.want == "" {
					assert.Empty(t, body)
				} else {
					assert.JSONEq(t, testCase.want, string(body))
				}

				writer.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := entityhttp.NewClient(server.URL)
			resp, err := client.Do(context.Background(), &entityhttp.Request{
				Method: testCase.method,
				Path:   "/test",
				Body:   testCase.body,
			})
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		})
	}
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_RetryLogic(t *testing.T) {
	t.Parallel()
	t.Run("does not retry by default", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)
			writer.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := entityhttp.NewClient(server.URL)

		resp, err := client.Do(context.Background(), &entityhttp.Request{Method: http.MethodGet, Path: "/test"})
		require.Error(t, err)
		assert.Equal(t, 503, resp.StatusCode)
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("retries idempotent requests on 5xx errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if attempts.Add(1) < 3 {
				writer.WriteHeader(http.StatusInternalServerError)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := entityhttp.NewClient(server.URL, entityhttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Do(context.Background(), &entityhttp.Request{Method: http.MethodGet, Path: "/test"})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("retries on rate limiting", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if attempts.Add(1) < 2 {
				writer.WriteHeader(http.StatusTooManyRequests)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := entityhttp.NewClient(server.URL, entityhttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Do(context.Background(), &entityhttp.Request{Method: http.MethodGet, Path: "/test"})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(2), attempts.Load())
	})

	t.Run("never retries writes", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)
			writer.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := entityhttp.NewClient(server.URL, entityhttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Do(context.Background(), &entityhttp.Request{
			Method: http.MethodPost,
			Path:   "/test",
			Body:   map[string]string{"key": "value"},
		})
		require.Error(t, err)
		assert.Equal(t, 500, resp.StatusCode)
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("does not retry on client errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)
			writer.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := entityhttp.NewClient(server.URL, entityhttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Do(context.Background(), &entityhttp.Request{Method: http.MethodGet, Path: "/test"})
		require.Error(t, err)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, int32(1), attempts.Load())
	})
}
