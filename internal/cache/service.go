// Package cache wraps the Redis connection behind typed helpers for the
// service's key layout: JSON records with TTLs, per-token trade zsets,
// the durable blockchain:events stream, burn zsets and pub/sub.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/0xpads/curvewatch/internal/config"
	"github.com/0xpads/curvewatch/internal/domain"
)

// Service owns the shared Redis client. All operations carry the
// caller's context; socket timeouts come from configuration.
type Service struct {
	client *redis.Client
}

// New builds a Service from configuration. cache.url wins over
// host/port when set.
func New(cfg config.Cache) (*Service, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse cache url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	opts.PoolSize = cfg.MaxConnections
	timeout := time.Duration(cfg.SocketTimeoutS) * time.Second
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout

	return &Service{client: redis.NewClient(opts)}, nil
}

// NewWithClient wires an existing client; used by tests with redismock.
func NewWithClient(client *redis.Client) *Service {
	return &Service{client: client}
}

// Connect verifies the server is reachable.
func (s *Service) Connect(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache connect: %w", err)
	}
	log.Info().Str("component", "cache").Msg("connected to redis")
	return nil
}

func (s *Service) Close() error {
	return s.client.Close()
}

// Health reports reachability within the caller's deadline.
func (s *Service) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache health: %w", err)
	}
	return nil
}

// SetJSON marshals v and stores it under key with the given TTL.
func (s *Service) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// GetJSON unmarshals the value at key into dest. The boolean reports
// whether the key existed; a miss is not an error.
func (s *Service) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// AppendTrade adds one trade record to the token's time-ordered zset,
// scored by unix seconds, keeping only the most recent entries.
func (s *Service) AppendTrade(ctx context.Context, token common.Address, rec domain.TradeRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal trade record: %w", err)
	}
	key := TradesStreamKey(token)
	if err := s.client.ZAdd(ctx, key, &redis.Z{Score: float64(rec.Timestamp), Member: raw}).Err(); err != nil {
		return fmt.Errorf("redis zadd %s: %w", key, err)
	}
	// Trim to the newest tradesStreamMaxLen members.
	if err := s.client.ZRemRangeByRank(ctx, key, 0, int64(-tradesStreamMaxLen-1)).Err(); err != nil {
		return fmt.Errorf("redis ztrim %s: %w", key, err)
	}
	return nil
}

// TradesInWindow returns the token's trade records with scores inside
// [from, to], ascending by timestamp.
func (s *Service) TradesInWindow(ctx context.Context, token common.Address, from, to int64) ([]domain.TradeRecord, error) {
	key := TradesStreamKey(token)
	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from),
		Max: fmt.Sprintf("%d", to),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore %s: %w", key, err)
	}
	out := make([]domain.TradeRecord, 0, len(members))
	for _, m := range members {
		var rec domain.TradeRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("skipping unreadable trade record")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// AppendCandle writes a candle record into the per-interval history
// zset, scored by bucket timestamp. Re-appending the same bucket
// replaces the previous member for that bucket first so the zset keeps
// one member per bucket.
func (s *Service) AppendCandle(ctx context.Context, c *domain.Candle) error {
	raw, err := json.Marshal(c.Record())
	if err != nil {
		return fmt.Errorf("marshal candle record: %w", err)
	}
	key := CandlesKey(c.Token, c.Interval)
	score := fmt.Sprintf("%d", c.BucketTS)
	if err := s.client.ZRemRangeByScore(ctx, key, score, score).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore %s: %w", key, err)
	}
	if err := s.client.ZAdd(ctx, key, &redis.Z{Score: float64(c.BucketTS), Member: raw}).Err(); err != nil {
		return fmt.Errorf("redis zadd %s: %w", key, err)
	}
	return nil
}

// LatestCandle returns the newest candle in the history zset, or nil
// when the token/interval has none.
func (s *Service) LatestCandle(ctx context.Context, token common.Address, interval domain.Interval) (*domain.Candle, error) {
	key := CandlesKey(token, interval)
	members, err := s.client.ZRevRange(ctx, key, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange %s: %w", key, err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	var rec domain.CandleRecord
	if err := json.Unmarshal([]byte(members[0]), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return domain.CandleFromRecord(rec)
}

// RecentCandles returns up to limit of the newest candle records for a
// (token, interval) pair, ascending by bucket timestamp.
func (s *Service) RecentCandles(ctx context.Context, token common.Address, interval domain.Interval, limit int64) ([]domain.CandleRecord, error) {
	key := CandlesKey(token, interval)
	members, err := s.client.ZRevRange(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange %s: %w", key, err)
	}
	out := make([]domain.CandleRecord, 0, len(members))
	for i := len(members) - 1; i >= 0; i-- {
		var rec domain.CandleRecord
		if err := json.Unmarshal([]byte(members[i]), &rec); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("skipping unreadable candle record")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// AppendEvent appends one entry to the durable blockchain:events
// stream, approximately capped. The event id ties the stream entry
// back to the envelope consumers see in logs.
func (s *Service) AppendEvent(ctx context.Context, eventType, eventID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal stream payload: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream:       EventStreamKey,
		MaxLenApprox: eventStreamMaxLen,
		Values: map[string]interface{}{
			"event_type": eventType,
			"event_id":   eventID,
			"data":       data,
			"timestamp":  time.Now().UTC().Unix(),
			"source":     "blockchain_listener",
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", EventStreamKey, err)
	}
	return nil
}

// Publish sends a JSON payload on a pub/sub channel.
func (s *Service) Publish(ctx context.Context, channel string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal publish payload: %w", err)
	}
	if err := s.client.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// RecordBurn writes one burn record into the global, per-token and
// per-burner zsets and announces it on the burn_events channel.
func (s *Service) RecordBurn(ctx context.Context, token, burner common.Address, record interface{}, ts int64) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal burn record: %w", err)
	}
	member := &redis.Z{Score: float64(ts), Member: raw}
	for _, key := range []string{BurnAllKey, BurnTokenKey(token), BurnBurnerKey(burner)} {
		if err := s.client.ZAdd(ctx, key, member).Err(); err != nil {
			return fmt.Errorf("redis zadd %s: %w", key, err)
		}
	}
	envelope := map[string]interface{}{"type": "burn_event", "data": json.RawMessage(raw)}
	if err := s.Publish(ctx, BurnPubSubChannel, envelope); err != nil {
		return err
	}
	return nil
}

// CleanupOlderThan prunes zset members older than the window across all
// per-token trade streams and the burn zsets. Runs on the supervisor's
// hourly schedule.
func (s *Service) CleanupOlderThan(ctx context.Context, window time.Duration) error {
	cutoff := fmt.Sprintf("%d", time.Now().Add(-window).Unix())
	removed := int64(0)

	patterns := []string{"trades:stream:*", "burn_events:*"}
	for _, pattern := range patterns {
		var cursor uint64
		for {
			keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return fmt.Errorf("redis scan %s: %w", pattern, err)
			}
			for _, key := range keys {
				n, err := s.client.ZRemRangeByScore(ctx, key, "-inf", cutoff).Result()
				if err != nil {
					return fmt.Errorf("redis zremrangebyscore %s: %w", key, err)
				}
				removed += n
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("cache cleanup pruned old records")
	}
	return nil
}
