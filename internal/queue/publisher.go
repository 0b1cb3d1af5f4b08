// Package queue publishes completion results to a message broker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/promptfunc/promptfunc/internal/config"
	"github.com/promptfunc/promptfunc/internal/logging"
	"github.com/promptfunc/promptfunc/internal/retry"
)

var (
	errNilPublisher = errors.New("queue publisher not initialized")
	errEmptyQueue   = errors.New("empty queue name")
	errUnknownQueue = errors.New("unknown queue backend")
)

// OutMessage is one answered prompt.
type OutMessage struct {
	Prompt     string    `json:"prompt"`
	Answer     string    `json:"answer"`
	CreatedUTC time.Time `json:"createdUtc"`
}

// NewOutMessage stamps a result with the current UTC time.
func NewOutMessage(prompt, answer string) OutMessage {
	return OutMessage{Prompt: prompt, Answer: answer, CreatedUTC: time.Now().UTC()}
}

// Encode returns the JSON payload written to the broker.
func (m OutMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Publisher delivers results to the configured queue.
type Publisher interface {
	Publish(ctx context.Context, msg OutMessage) error
	Close() error
}

// FromConfig connects the publisher selected by QUEUE_BACKEND.
func FromConfig(ctx context.Context, cfg *config.Config) (Publisher, error) {
	switch cfg.QueueBackend {
	case "nats":
		return NewNATS(cfg.NATSURL, cfg.ResultsQueue)
	case "redis":
		return NewRedis(ctx, cfg.RedisURL, cfg.ResultsQueue)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownQueue, cfg.QueueBackend)
	}
}

// Connect retries FromConfig with rc while the broker is unreachable, so the
// server can start before its broker does. Misconfiguration fails at once.
func Connect(ctx context.Context, cfg *config.Config, rc retry.Config) (Publisher, error) {
	var pub Publisher
	attempt := 0
	err := retry.Do(ctx, rc, func() error {
		attempt++
		p, err := FromConfig(ctx, cfg)
		if err == nil {
			pub = p
			return nil
		}
		if errors.Is(err, errUnknownQueue) || errors.Is(err, errEmptyQueue) {
			return err
		}
		logging.Warn("results queue unreachable",
			zap.String("backend", cfg.QueueBackend),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return retry.Retryable(err)
	})
	if err != nil {
		return nil, err
	}
	return pub, nil
}
