package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultInvalidationChannel = "techpack:cache:invalidate"
	defaultCloseTimeout        = 5 * time.Second
)

// InvalidationAction is the kind of invalidation broadcast to peers
type InvalidationAction string

const (
	ActionDocuments InvalidationAction = "documents"
	ActionPattern   InvalidationAction = "pattern"
	ActionFlush     InvalidationAction = "flush"
)

// InvalidationMessage tells sibling instances to drop L1 entries
type InvalidationMessage struct {
	Action      InvalidationAction `json:"action"`
	DocumentIDs []string           `json:"document_ids,omitempty"`
	Prefix      string             `json:"prefix,omitempty"`
	Origin      string             `json:"origin"`
	Timestamp   int64              `json:"timestamp"`
}

// RedisInvalidationBus broadcasts invalidations over Redis Pub/Sub
type RedisInvalidationBus struct {
	client    *redis.Client
	channel   string
	origin    string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// InvalidationBusOption is a functional option for configuring the bus
type InvalidationBusOption func(*RedisInvalidationBus)

// WithInvalidationChannel sets the Pub/Sub channel name
func WithInvalidationChannel(channel string) InvalidationBusOption {
	return func(b *RedisInvalidationBus) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithInvalidationLogger sets the logger for the bus
func WithInvalidationLogger(logger *zap.Logger) InvalidationBusOption {
	return func(b *RedisInvalidationBus) {
		b.logger = logger
	}
}

// NewRedisInvalidationBus creates a bus on a shared client.
// The caller retains ownership of the client.
func NewRedisInvalidationBus(client *redis.Client, opts ...InvalidationBusOption) *RedisInvalidationBus {
	b := &RedisInvalidationBus{
		client:  client,
		channel: defaultInvalidationChannel,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Origin identifies this instance in published messages
func (b *RedisInvalidationBus) Origin() string {
	return b.origin
}

// Publish sends an invalidation to all subscribers
func (b *RedisInvalidationBus) Publish(ctx context.Context, msg InvalidationMessage) error {
	msg.Origin = b.origin
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish invalidation message",
			zap.String("channel", b.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish invalidation message: %w", err)
	}

	b.logger.Debug("Published invalidation message",
		zap.String("action", string(msg.Action)),
		zap.Strings("document_ids", msg.DocumentIDs),
		zap.String("prefix", msg.Prefix))
	return nil
}

// Subscribe listens for invalidations from other instances and invokes
// callback for each. Messages this instance published are skipped.
// It blocks until ctx is cancelled or Close is called.
func (b *RedisInvalidationBus) Subscribe(ctx context.Context, callback func(InvalidationMessage)) error {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	b.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	b.cancelFn = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.isRunning = false
		b.mu.Unlock()
		b.markDone()
	}()

	pubsub := b.client.Subscribe(subCtx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Info("Subscribed to cache invalidation channel",
		zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			b.logger.Info("Cache invalidation subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("Cache invalidation channel closed")
				return nil
			}

			var inv InvalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				b.logger.Error("Failed to unmarshal invalidation message",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			if inv.Origin == b.origin {
				continue
			}

			b.dispatch(callback, inv)
		}
	}
}

// dispatch runs the callback inline so invalidations apply in publish order
func (b *RedisInvalidationBus) dispatch(callback func(InvalidationMessage), msg InvalidationMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in invalidation callback", zap.Any("panic", r))
		}
	}()
	callback(msg)
}

func (b *RedisInvalidationBus) markDone() {
	b.doneOnce.Do(func() {
		close(b.doneCh)
	})
}

// Close stops a running subscription and waits for it to exit
func (b *RedisInvalidationBus) Close() error {
	b.mu.Lock()
	cancelFn := b.cancelFn
	b.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-b.doneCh:
		case <-time.After(defaultCloseTimeout):
			b.logger.Warn("Timeout waiting for invalidation subscription to stop")
		}
	}
	return nil
}

var _ InvalidationBus = (*RedisInvalidationBus)(nil)
