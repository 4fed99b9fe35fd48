package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

// RedisHub fans notifications out through Redis pub/sub so every API node
// can serve live streams regardless of which node wrote the notification.
type RedisHub struct {
	client *redis.Client
}

// NewRedisHub connects to redisURL and verifies the connection.
func NewRedisHub(ctx context.Context, redisURL string) (*RedisHub, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.MaintNotificationsConfig = &maintnotifications.Config{
		Mode: maintnotifications.ModeDisabled,
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisHub{client: client}, nil
}

// NewRedisHubFromClient wraps an existing client.
func NewRedisHubFromClient(client *redis.Client) *RedisHub {
	return &RedisHub{client: client}
}

func channelFor(userID uuid.UUID) string {
	return "notifications:" + userID.String()
}

func (h *RedisHub) Publish(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := h.client.Publish(ctx, channelFor(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

func (h *RedisHub) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan models.Notification, func(), error) {
	ps := h.client.Subscribe(ctx, channelFor(userID))
	// Wait for the subscription confirmation so no publish is missed
	// between Subscribe returning and the first read.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan models.Notification, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			ps.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				unsubscribe()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n models.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					slog.Warn("dropping malformed realtime payload", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- n:
				default:
					slog.Warn("realtime subscriber buffer full, dropping event", "user_id", userID.String())
				}
			}
		}
	}()

	return out, unsubscribe, nil
}

func (h *RedisHub) Close() error {
	return h.client.Close()
}
