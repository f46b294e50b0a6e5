// Package events publishes repository write events to NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fivetwenty-io/entity-client/internal/constants"
	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

// Static errors for err113 compliance.
var (
	ErrNATSURLRequired = errors.New("NATS URL is required")
	ErrPublisherClosed = errors.New("publisher is closed")
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSConfig configures a NATS publisher.
type NATSConfig struct {
	// URL is the NATS server address, e.g. "nats://127.0.0.1:4222".
	URL string
	// SubjectPrefix defaults to "entity".
	SubjectPrefix string
	// Name identifies the connection on the server.
	Name string
	// Flush waits for the server to acknowledge every publish.
	Flush bool
	// ConnectTimeout bounds the initial connect.
	ConnectTimeout time.Duration
}

// NATSPublisher implements entity.WritePublisher. Events are published as
// JSON to "<prefix>.<entity>.<action>".
type NATSPublisher struct {
	conn   Conn
	prefix string
	flush  bool
	closed atomic.Bool
}

var _ entity.WritePublisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to config.URL.
func NewNATSPublisher(config *NATSConfig) (*NATSPublisher, error) {
	if config == nil || config.URL == "" {
		return nil, ErrNATSURLRequired
	}

	opts := []nats.Option{nats.MaxReconnects(-1)}

	if config.Name != "" {
		opts = append(opts, nats.Name(config.Name))
	}

	if config.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(config.ConnectTimeout))
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", config.URL, err)
	}

	return NewPublisher(conn, config.SubjectPrefix, config.Flush), nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, prefix string, flush bool) *NATSPublisher {
	if prefix == "" {
		prefix = constants.DefaultEventSubjectPrefix
	}

	return &NATSPublisher{conn: conn, prefix: prefix, flush: flush}
}

// Subject returns the subject event is published on.
func (p *NATSPublisher) Subject(event entity.WriteEvent) string {
	return strings.Join([]string{p.prefix, event.Entity, event.Action}, ".")
}

// PublishWrite implements entity.WritePublisher.
func (p *NATSPublisher) PublishWrite(ctx context.Context, event entity.WriteEvent) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding write event: %w", err)
	}

	subject := p.Subject(event)

	err = p.conn.Publish(subject, data)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	if !p.flush {
		return nil
	}

	err = p.conn.FlushWithContext(ctx)
	if err != nil {
		return fmt.Errorf("flushing %s: %w", subject, err)
	}

	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := p.conn.Drain()
	if err != nil {
		return fmt.Errorf("draining NATS connection: %w", err)
	}

	return nil
}
