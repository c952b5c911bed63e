package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisArchive keeps each room's recent messages in a capped Redis list under
// room:<name>:messages, expiring after a day of inactivity. It is the drop-in
// alternative to the SQLite messages table for deployments that already run
// Redis.
type RedisArchive struct {
	client *redis.Client
	limit  int64
	ttl    time.Duration
}

const redisHistoryTTL = 24 * time.Hour

// NewRedisArchive connects and pings the Redis server. limit caps the list
// length per room.
func NewRedisArchive(ctx context.Context, addr string, limit int) (*RedisArchive, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}
	return &RedisArchive{client: client, limit: int64(limit), ttl: redisHistoryTTL}, nil
}

// Close releases the client.
func (a *RedisArchive) Close() error {
	return a.client.Close()
}

type redisMessage struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Author string `json:"author"`
	Body   string `json:"body"`
	SentAt int64  `json:"sent_at"`
}

func historyKey(room string) string {
	return "room:" + room + ":messages"
}

// AppendMessage pushes the message onto the room's list, trims to the cap and
// refreshes the TTL in one pipeline round trip.
func (a *RedisArchive) AppendMessage(ctx context.Context, msg Message) (string, error) {
	rm := redisMessage{
		ID:     uuid.NewString(),
		Room:   msg.Room,
		Author: msg.Author,
		Body:   msg.Body,
		SentAt: msg.SentAt,
	}
	encoded, err := json.Marshal(rm)
	if err != nil {
		return "", err
	}
	key := historyKey(msg.Room)
	pipe := a.client.TxPipeline()
	pipe.RPush(ctx, key, encoded)
	pipe.LTrim(ctx, key, -a.limit, -1)
	pipe.Expire(ctx, key, a.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis append: %w", err)
	}
	return rm.ID, nil
}

// RecentMessages reads the tail of the room's list, most recent last. Entries
// that fail to decode are skipped rather than failing the whole read.
func (a *RedisArchive) RecentMessages(ctx context.Context, room string, limit int) ([]Message, error) {
	if limit <= 0 || int64(limit) > a.limit {
		limit = int(a.limit)
	}
	raw, err := a.client.LRange(ctx, historyKey(room), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read: %w", err)
	}
	messages := make([]Message, 0, len(raw))
	for _, entry := range raw {
		var rm redisMessage
		if err := json.Unmarshal([]byte(entry), &rm); err != nil {
			continue
		}
		messages = append(messages, Message{
			Room:   rm.Room,
			Author: rm.Author,
			Body:   rm.Body,
			SentAt: rm.SentAt,
		})
	}
	return messages, nil
}
