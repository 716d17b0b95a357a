package repository

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisDecisionRepo keeps the newest decisions in a capped Redis list.
type RedisDecisionRepo struct {
	client  *redis.Client
	listKey string
	listMax int
}

func NewRedisDecisionRepo(client *redis.Client, prefix string, listMax int) *RedisDecisionRepo {
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisDecisionRepo{
		client:  client,
		listKey: keyPrefix(prefix) + ":decisions",
		listMax: listMax,
	}
}

func (r *RedisDecisionRepo) Insert(ctx context.Context, rec *model.DecisionRecord) error {
	if rec == nil {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.listKey, payload)
		pipe.LTrim(ctx, r.listKey, 0, int64(r.listMax-1))
		return nil
	})
	return err
}

func (r *RedisDecisionRepo) List(ctx context.Context, symbol string, limit int) ([]*model.DecisionRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	fetch := limit * 5
	if fetch < 100 {
		fetch = 100
	}
	if fetch > r.listMax {
		fetch = r.listMax
	}
	items, err := r.client.LRange(ctx, r.listKey, 0, int64(fetch-1)).Result()
	if err != nil {
		return nil, err
	}
	results := make([]*model.DecisionRecord, 0, limit)
	for _, raw := range items {
		var rec model.DecisionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if symbol != "" && !strings.EqualFold(rec.Symbol, symbol) {
			continue
		}
		results = append(results, &rec)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
