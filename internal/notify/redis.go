package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"videopipe/internal/config"
	"videopipe/internal/logging"
)

const (
	redisDeliverTimeout = 2 * time.Second
	// redisSnapshotTTL bounds how long the last snapshot of a job stays readable.
	redisSnapshotTTL = 7 * 24 * time.Hour
)

// RedisSink mirrors events to a Redis pub/sub channel and keeps the latest
// snapshot of each job in a hash for dashboards that poll.
type RedisSink struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisSink returns nil when events.redis_addr is empty.
func NewRedisSink(cfg config.Events, logger *slog.Logger) *RedisSink {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = "videopipe:events"
	}
	return &RedisSink{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		channel: channel,
		logger:  logging.NewComponentLogger(logger, "notify-redis"),
	}
}

// Channel returns the pub/sub channel name.
func (s *RedisSink) Channel() string { return s.channel }

// Ping checks connectivity.
func (s *RedisSink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// Deliver publishes evt. Failures are logged and never block the pipeline
// longer than the delivery timeout.
func (s *RedisSink) Deliver(evt Event) {
	payload, err := encodeEvent(evt)
	if err != nil {
		s.logger.Warn("encode event failed", logging.String(logging.FieldJobID, evt.JobID), logging.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisDeliverTimeout)
	defer cancel()

	key := SnapshotKey(evt.JobID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, snapshotFields(evt))
		pipe.Expire(ctx, key, redisSnapshotTTL)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		logging.WarnWithContext(s.logger, "redis event delivery failed", "redis_delivery_failed",
			logging.String(logging.FieldJobID, evt.JobID),
			logging.String("channel", s.channel),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check events.redis_addr"),
			logging.String(logging.FieldImpact, "external dashboards miss this update"),
		)
	}
}

// SnapshotKey returns the Redis hash holding a job's latest snapshot.
func SnapshotKey(jobID string) string {
	return "videopipe:job:" + jobID
}

func encodeEvent(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

func snapshotFields(evt Event) map[string]any {
	fields := map[string]any{
		"seq":              evt.Sequence,
		"status":           string(evt.Status),
		"progress_percent": evt.ProgressPercent,
		"updated_at":       evt.Time.UTC().Format(time.RFC3339Nano),
	}
	if evt.CompressedSizeBytes > 0 {
		fields["compressed_size_bytes"] = evt.CompressedSizeBytes
	}
	if evt.PublishedURL != "" {
		fields["published_url"] = evt.PublishedURL
	}
	if evt.ErrorReason != "" {
		fields["error_reason"] = evt.ErrorReason
	}
	return fields
}
