// Package aggregate maintains live OHLCV state per (token, interval)
// and recomputes rolling 24h market stats per trade.
package aggregate

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/0xpads/curvewatch/internal/domain"
)

const shardCount = 32

// CandleLoader warms the aggregator from the candle history written by
// a previous run. Optional: nil starts cold.
type CandleLoader interface {
	LatestCandle(ctx context.Context, token common.Address, interval domain.Interval) (*domain.Candle, error)
}

// Update is the outcome of folding one trade into one interval.
type Update struct {
	Candle   domain.Candle
	Previous *domain.Candle
	Created  bool
}

type shard struct {
	mu      sync.Mutex
	candles map[string]*domain.Candle
}

// Aggregator owns the latest candle per (token, interval). Writes for
// the same key serialize on the key's shard mutex; distinct keys
// proceed in parallel.
type Aggregator struct {
	intervals []domain.Interval
	loader    CandleLoader
	shards    [shardCount]shard
}

func New(intervals []domain.Interval, loader CandleLoader) *Aggregator {
	a := &Aggregator{intervals: intervals, loader: loader}
	for i := range a.shards {
		a.shards[i].candles = make(map[string]*domain.Candle)
	}
	return a
}

func key(token common.Address, interval domain.Interval) string {
	return token.Hex() + ":" + string(interval)
}

func (a *Aggregator) shardFor(k string) *shard {
	h := fnv.New32a()
	h.Write([]byte(k))
	return &a.shards[h.Sum32()%shardCount]
}

// Apply folds one trade into every configured interval concurrently.
// A failure in one interval never blocks the others; failed intervals
// are simply absent from the result. Results come back ordered by
// interval width so fan-out output is deterministic.
func (a *Aggregator) Apply(ctx context.Context, t *domain.Trade) []Update {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		updates = make([]Update, 0, len(a.intervals))
	)
	for _, iv := range a.intervals {
		wg.Add(1)
		go func(iv domain.Interval) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("token", t.Token.Hex()).
						Str("interval", iv.String()).
						Interface("panic", r).
						Msg("candle update panicked")
				}
			}()
			upd := a.applyInterval(ctx, t, iv)
			mu.Lock()
			updates = append(updates, upd)
			mu.Unlock()
		}(iv)
	}
	wg.Wait()
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].Candle.Interval.Seconds() < updates[j].Candle.Interval.Seconds()
	})
	return updates
}

func (a *Aggregator) applyInterval(ctx context.Context, t *domain.Trade, iv domain.Interval) Update {
	k := key(t.Token, iv)
	sh := a.shardFor(k)

	// The warm read may suspend on the cache, so it happens before the
	// lock; the read-modify-write below never suspends while held.
	var warmed *domain.Candle
	sh.mu.Lock()
	_, known := sh.candles[k]
	sh.mu.Unlock()
	if !known && a.loader != nil {
		c, err := a.loader.LatestCandle(ctx, t.Token, iv)
		if err != nil {
			log.Debug().Str("token", t.Token.Hex()).Str("interval", iv.String()).Err(err).
				Msg("candle warm load failed; starting cold")
		} else {
			warmed = c
		}
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	c := sh.candles[k]
	if c == nil && warmed != nil {
		c = warmed
		sh.candles[k] = c
	}

	bucket := iv.Floor(t.Timestamp.Unix())
	created := false
	var prev *domain.Candle
	if c == nil || c.BucketTS < bucket {
		if c != nil {
			cp := *c
			prev = &cp
		}
		c = domain.NewCandle(t, iv)
		sh.candles[k] = c
		created = true
	}
	c.ApplyTrade(t)
	return Update{Candle: *c, Previous: prev, Created: created}
}

// Latest returns a copy of the live candle for a key, if any.
func (a *Aggregator) Latest(token common.Address, interval domain.Interval) (domain.Candle, bool) {
	k := key(token, interval)
	sh := a.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.candles[k]
	if !ok {
		return domain.Candle{}, false
	}
	return *c, true
}
