package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/port"
)

const (
	fieldID      = "id"
	fieldKey     = "key"
	fieldPayload = "payload"
)

type RedisStreamConfig struct {
	Consumer   string
	BatchSize  int64
	Block      time.Duration
	RetryDelay time.Duration
	// MaxLen caps each stream approximately; 0 keeps everything
	MaxLen int64
}

// RedisStreamBus maps topics to Redis streams and groups to consumer groups.
// Unacknowledged entries stay in the group's pending list and are read again
// before any new entry, which keeps per-stream order for a single consumer.
type RedisStreamBus struct {
	client *redis.Client
	cfg    RedisStreamConfig
	log    *zap.Logger
}

func NewRedisStreamBus(client *redis.Client, cfg RedisStreamConfig, log *zap.Logger) *RedisStreamBus {
	if cfg.Consumer == "" {
		cfg.Consumer = uuid.NewString()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStreamBus{client: client, cfg: cfg, log: log}
}

func (b *RedisStreamBus) Publish(ctx context.Context, topic string, msg port.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			fieldID:      msg.ID,
			fieldKey:     msg.Key,
			fieldPayload: msg.Payload,
		},
	}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}

	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", topic, err)
	}
	return nil
}

func (b *RedisStreamBus) Subscribe(ctx context.Context, topic, group string, handler port.BatchHandler) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, topic, err)
	}

	log := b.log.With(zap.String("topic", topic), zap.String("group", group))
	pending := true

	for {
		if ctx.Err() != nil {
			return nil
		}

		start, block := ">", b.cfg.Block
		if pending {
			start, block = "0", -1
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.cfg.Consumer,
			Streams:  []string{topic, start},
			Count:    b.cfg.BatchSize,
			Block:    block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("xreadgroup failed", zap.Error(err))
			b.sleep(ctx)
			continue
		}

		batch, ids := decodeStreams(streams)
		if len(batch) == 0 {
			pending = false
			continue
		}

		if pending {
			b.fillAttempts(ctx, topic, group, batch, ids)
		}

		if err := handler(ctx, batch); err != nil {
			pending = true
			b.sleep(ctx)
			continue
		}

		if err := b.client.XAck(ctx, topic, group, ids...).Err(); err != nil {
			log.Error("xack failed, batch will be redelivered", zap.Error(err))
		}
	}
}

func (b *RedisStreamBus) fillAttempts(ctx context.Context, topic, group string, batch []port.Message, ids []string) {
	entries, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   topic,
		Group:    group,
		Start:    "-",
		End:      "+",
		Count:    b.cfg.BatchSize * 4,
		Consumer: b.cfg.Consumer,
	}).Result()
	if err != nil {
		b.log.Warn("xpending failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	counts := make(map[string]int64, len(entries))
	for _, e := range entries {
		counts[e.ID] = e.RetryCount
	}
	for i := range batch {
		if n, ok := counts[ids[i]]; ok && int(n) > batch[i].Attempt {
			batch[i].Attempt = int(n)
		}
	}
}

func (b *RedisStreamBus) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(b.cfg.RetryDelay):
	}
}

func decodeStreams(streams []redis.XStream) ([]port.Message, []string) {
	var batch []port.Message
	var ids []string
	for _, s := range streams {
		for _, xm := range s.Messages {
			msg := port.Message{
				ID:      stringValue(xm.Values[fieldID]),
				Key:     stringValue(xm.Values[fieldKey]),
				Payload: []byte(stringValue(xm.Values[fieldPayload])),
				Attempt: 1,
			}
			batch = append(batch, msg)
			ids = append(ids, xm.ID)
		}
	}
	return batch, ids
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
