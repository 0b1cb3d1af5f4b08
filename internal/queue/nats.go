package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/promptfunc/promptfunc/internal/logging"
	"github.com/promptfunc/promptfunc/internal/metrics"
)

// NATSPublisher publishes results as core NATS messages on a fixed subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATS dials url and publishes to subject.
func NewNATS(url, subject string) (*NATSPublisher, error) {
	if subject == "" {
		return nil, errEmptyQueue
	}
	opts := []nats.Option{
		nats.Name("promptfunc"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

// Publish sends msg and flushes so that broker errors surface to the caller.
func (p *NATSPublisher) Publish(ctx context.Context, msg OutMessage) error {
	err := p.publish(ctx, msg)
	metrics.RecordQueuePublish("nats", err == nil)
	return err
}

func (p *NATSPublisher) publish(ctx context.Context, msg OutMessage) error {
	if p == nil || p.nc == nil {
		return errNilPublisher
	}
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	return nil
}

// Subject returns the subject results are published on.
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
