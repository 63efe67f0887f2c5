package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scanhook/scanhook/internal/job"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Redis publishes changes on a Redis pub/sub channel so that dispatchers in
// any process can consume them.
type Redis struct {
	client  *redis.Client
	sub     *redis.PubSub
	channel string
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "scanhook:jobs"
	}
	return &Redis{client: client, channel: channel, logger: logger}, nil
}

// Publish implements job.Publisher.
func (r *Redis) Publish(ctx context.Context, c job.Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe attaches to the channel and returns once Redis has confirmed
// the subscription. Changes published after it returns reach Run.
func (r *Redis) Subscribe(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close() //nolint:errcheck
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.sub = sub
	r.logger.Info("changefeed: subscribed", "channel", r.channel)
	return nil
}

// Run invokes h for each change until ctx is done or the feed is closed.
// Each message is handled in its own goroutine. Run subscribes first if
// Subscribe has not been called.
func (r *Redis) Run(ctx context.Context, h Handler) error {
	if r.sub == nil {
		if err := r.Subscribe(ctx); err != nil {
			return err
		}
	}

	msgs := r.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c, err := decodeChange([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("changefeed: dropping malformed change", "error", err)
				continue
			}
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				h(context.WithoutCancel(ctx), c)
			}()
		}
	}
}

// Wait blocks until every in-flight handler has returned.
func (r *Redis) Wait() {
	r.wg.Wait()
}

// Close drops the subscription and closes the Redis connection.
func (r *Redis) Close() error {
	if r.sub != nil {
		r.sub.Close() //nolint:errcheck
	}
	return r.client.Close()
}

func decodeChange(payload []byte) (job.Change, error) {
	var c job.Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return job.Change{}, fmt.Errorf("unmarshal change: %w", err)
	}
	if c.Before == nil && c.After == nil {
		return job.Change{}, fmt.Errorf("change has neither before nor after image")
	}
	return c, nil
}
