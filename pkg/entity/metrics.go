package entity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metadataStartTime = "start_time"

// Metrics collects request counts and latencies per entity and operation.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered. Collectors already registered by another client
// are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entity_client_requests_total",
		Help: "Total number of API requests issued by entity repositories.",
	}, []string{"entity", "operation", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "entity_client_request_duration_seconds",
		Help:    "API request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity", "operation"})

	if reg != nil {
		var err error

		requests, err = register(reg, requests)
		if err != nil {
			return nil, err
		}

		duration, err = register(reg, duration)
		if err != nil {
			return nil, err
		}
	}

	return &Metrics{Requests: requests, Duration: duration}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing, nil
		}
	}

	return collector, fmt.Errorf("registering metrics: %w", err)
}

// RequestInterceptor records the request start time.
func (m *Metrics) RequestInterceptor() RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		if req.Metadata == nil {
			req.Metadata = make(map[string]interface{})
		}

		req.Metadata[metadataStartTime] = time.Now()

		return nil
	}
}

// ResponseInterceptor records the outcome and latency.
func (m *Metrics) ResponseInterceptor() ResponseInterceptor {
	return func(ctx context.Context, req *Request, resp *Response) error {
		status := "error"
		if resp.Error == nil {
			status = strconv.Itoa(resp.StatusCode)
		}

		m.Requests.WithLabelValues(req.Entity, req.Operation, status).Inc()

		if start, ok := req.Metadata[metadataStartTime].(time.Time); ok {
			m.Duration.WithLabelValues(req.Entity, req.Operation).Observe(time.Since(start).Seconds())
		}

		return nil
	}
}

// Attach adds both interceptors to chain.
func (m *Metrics) Attach(chain *InterceptorChain) {
	chain.AddRequestInterceptor(m.RequestInterceptor())
	chain.AddResponseInterceptor(m.ResponseInterceptor())
}
