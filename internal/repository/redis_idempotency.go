package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/riskgate/internal/middleware"
	"github.com/redis/go-redis/v9"
)

const idemTimeout = 2 * time.Second

// RedisIdempotencyStore shares fill idempotency keys across server replicas.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisIdempotencyStore(client *redis.Client, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{
		client: client,
		ttl:    ttl,
		prefix: keyPrefix(prefix) + ":idem:",
	}
}

func (s *RedisIdempotencyStore) GetOrLock(key string) (*middleware.IdempotencyRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), idemTimeout)
	defer cancel()

	record := middleware.IdempotencyRecord{
		CreatedAt:  time.Now().UTC(),
		Processing: true,
	}
	ok, err := s.client.SetNX(ctx, s.prefix+key, encodeIdemRecord(record), s.ttl).Result()
	if err == nil && ok {
		return nil, false
	}
	// Only a successful SETNX grants the lock. When the existing record
	// cannot be read the request reports as in progress and the caller retries.
	raw, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		return &record, true
	}
	rec, err := decodeIdemRecord(raw)
	if err != nil {
		return &record, true
	}
	return rec, true
}

func (s *RedisIdempotencyStore) Save(key string, status int, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), idemTimeout)
	defer cancel()

	record := middleware.IdempotencyRecord{
		Status:    status,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	_ = s.client.Set(ctx, s.prefix+key, encodeIdemRecord(record), s.ttl).Err()
}

func (s *RedisIdempotencyStore) Unlock(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), idemTimeout)
	defer cancel()
	_ = s.client.Del(ctx, s.prefix+key).Err()
}

func encodeIdemRecord(rec middleware.IdempotencyRecord) string {
	wire := map[string]interface{}{
		"status":     rec.Status,
		"body":       base64.StdEncoding.EncodeToString(rec.Body),
		"created_at": rec.CreatedAt.Unix(),
		"processing": rec.Processing,
	}
	data, _ := json.Marshal(wire)
	return string(data)
}

func decodeIdemRecord(raw string) (*middleware.IdempotencyRecord, error) {
	var wire struct {
		Status     int    `json:"status"`
		Body       string `json:"body"`
		CreatedAt  int64  `json:"created_at"`
		Processing bool   `json:"processing"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	body, _ := base64.StdEncoding.DecodeString(wire.Body)
	return &middleware.IdempotencyRecord{
		Status:     wire.Status,
		Body:       body,
		CreatedAt:  time.Unix(wire.CreatedAt, 0).UTC(),
		Processing: wire.Processing,
	}, nil
}
