// Package fanout publishes each processed event to the three sinks:
// cache writes, the durable blockchain:events stream and the live
// backend push. Sinks run in that order; a failing sink is logged and
// never aborts the others.
package fanout

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0xpads/curvewatch/internal/aggregate"
	"github.com/0xpads/curvewatch/internal/cache"
	"github.com/0xpads/curvewatch/internal/domain"
	"github.com/0xpads/curvewatch/internal/metrics"
)

const (
	tradeLatestTTL = 300 * time.Second
	marketTTL      = 60 * time.Second
	curveTTL       = 3600 * time.Second

	streamRetries      = 3
	streamRetryInitial = 100 * time.Millisecond
)

// LiveSink is the backend socket surface the fan-out pushes through.
type LiveSink interface {
	EmitRoom(room string, data interface{}) error
	Broadcast(event string, data interface{}) error
}

type FanOut struct {
	cache *cache.Service
	live  LiveSink
	met   *metrics.Metrics
}

func New(cacheSvc *cache.Service, live LiveSink, met *metrics.Metrics) *FanOut {
	return &FanOut{cache: cacheSvc, live: live, met: met}
}

func (f *FanOut) sinkFailed(sink, token, eventID string, err error) {
	log.Error().Str("sink", sink).Str("token", token).Str("event_id", eventID).Err(err).Msg("fan-out sink failed")
	if f.met != nil {
		f.met.SinkErrors.WithLabelValues(sink).Inc()
	}
}

// tradePayload decorates the cache record with derived fields.
type tradePayload struct {
	domain.TradeRecord
	EffectivePrice string `json:"effective_price"`
	PriceImpact    string `json:"price_impact"`
}

func newTradePayload(t *domain.Trade) tradePayload {
	return tradePayload{
		TradeRecord:    t.Record(),
		EffectivePrice: t.EffectivePrice().String(),
		PriceImpact:    t.PriceImpact().String(),
	}
}

// PublishTrade fans one accepted trade out to all three sinks,
// carrying the refreshed market summary and candle updates with it.
// The trade itself is already in the rolling window by this point; the
// dispatcher appends it before computing the market summary.
func (f *FanOut) PublishTrade(ctx context.Context, ev domain.TradeExecuted, md *domain.MarketData, updates []aggregate.Update) {
	t := ev.Trade
	token := t.Token.Hex()
	if err := f.tradeToCache(ctx, t, md, updates); err != nil {
		f.sinkFailed("cache", token, ev.EventID(), err)
	}
	if err := f.appendStream(ctx, "Trade", ev.EventID(), newTradePayload(t)); err != nil {
		f.sinkFailed("stream", token, ev.EventID(), err)
	}
	if err := f.tradeToLive(t, md, updates); err != nil {
		f.sinkFailed("live", token, ev.EventID(), err)
	}
}

func (f *FanOut) tradeToCache(ctx context.Context, t *domain.Trade, md *domain.MarketData, updates []aggregate.Update) error {
	latest := map[string]interface{}{
		"price":     t.PriceAfter.String(),
		"volume":    t.TokenAmount.String(),
		"direction": t.Direction.String(),
		"timestamp": t.Timestamp.Unix(),
	}
	if err := f.cache.SetJSON(ctx, cache.TradeLatestKey(t.Token), latest, tradeLatestTTL); err != nil {
		return err
	}
	if md != nil {
		if err := f.cache.SetJSON(ctx, cache.MarketKey(t.Token), md.Record(), marketTTL); err != nil {
			return err
		}
	}
	for i := range updates {
		if err := f.cache.AppendCandle(ctx, &updates[i].Candle); err != nil {
			return err
		}
	}
	return nil
}

func (f *FanOut) tradeToLive(t *domain.Trade, md *domain.MarketData, updates []aggregate.Update) error {
	room := "token:" + t.Token.Hex()
	payload := map[string]interface{}{
		"type": "trade",
		"data": newTradePayload(t),
	}
	if md != nil {
		payload["market_data"] = md.Record()
	}
	if err := f.live.EmitRoom(room, payload); err != nil {
		return err
	}
	for i := range updates {
		kind := "candle_update"
		if updates[i].Created {
			kind = "new_candle"
		}
		msg := map[string]interface{}{"type": kind, "data": updates[i].Candle.Record()}
		if err := f.live.EmitRoom(room, msg); err != nil {
			return err
		}
	}
	return nil
}

// appendStream writes to the durable stream with bounded retries
// (100ms/200ms/400ms); persistent failure surfaces as one warning.
func (f *FanOut) appendStream(ctx context.Context, eventType, eventID string, payload interface{}) error {
	delay := streamRetryInitial
	var err error
	for attempt := 1; attempt <= streamRetries; attempt++ {
		if err = f.cache.AppendEvent(ctx, eventType, eventID, payload); err == nil {
			return nil
		}
		if attempt == streamRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// PublishCurve handles a BondingCurveDeployed event: curve summary to
// the cache, stream append, and a new_curve broadcast.
func (f *FanOut) PublishCurve(ctx context.Context, ev domain.CurveDeployed) {
	curve := ev.Curve
	token := curve.Token.Hex()
	rec := curve.Record()
	if err := f.cache.SetJSON(ctx, cache.CurveKey(curve.Token), rec, curveTTL); err != nil {
		f.sinkFailed("cache", token, ev.EventID(), err)
	}
	if err := f.appendStream(ctx, ev.Type(), ev.EventID(), rec); err != nil {
		f.sinkFailed("stream", token, ev.EventID(), err)
	}
	if err := f.live.Broadcast("new_curve", rec); err != nil {
		f.sinkFailed("live", token, ev.EventID(), err)
	}
}

// BurnRecord is the JSON shape stored in the burn_events zsets.
type BurnRecord struct {
	TokenAddress  string `json:"token_address"`
	BurnerAddress string `json:"burner_address"`
	Amount        string `json:"amount"`
	TotalBurned   string `json:"total_burned"`
	Reason        string `json:"reason"`
	Timestamp     int64  `json:"timestamp"`
	TxHash        string `json:"tx_hash"`
}

// PublishBurn records a CommunityBurn in the burn zsets, announces it
// on pub/sub, appends the stream and pushes to the token's room.
func (f *FanOut) PublishBurn(ctx context.Context, ev domain.BurnRecorded) {
	token := ev.Token.Hex()
	rec := BurnRecord{
		TokenAddress:  token,
		BurnerAddress: ev.Burner.Hex(),
		Amount:        ev.Amount.String(),
		TotalBurned:   ev.TotalBurned.String(),
		Reason:        ev.Reason,
		Timestamp:     ev.Timestamp,
		TxHash:        ev.TxHash.Hex(),
	}
	if err := f.cache.RecordBurn(ctx, ev.Token, ev.Burner, rec, ev.Timestamp); err != nil {
		f.sinkFailed("cache", token, ev.EventID(), err)
	}
	if err := f.appendStream(ctx, ev.Type(), ev.EventID(), rec); err != nil {
		f.sinkFailed("stream", token, ev.EventID(), err)
	}
	if err := f.live.EmitRoom("token:"+token, map[string]interface{}{"type": "burn_event", "data": rec}); err != nil {
		f.sinkFailed("live", token, ev.EventID(), err)
	}
}

// PublishLifecycle appends curve lifecycle and creator events to the
// durable stream and broadcasts them live. No cache entry: downstream
// keeps its own view of lifecycle state.
func (f *FanOut) PublishLifecycle(ctx context.Context, ev domain.Event, payload interface{}) {
	if err := f.appendStream(ctx, ev.Type(), ev.EventID(), payload); err != nil {
		f.sinkFailed("stream", ev.Type(), ev.EventID(), err)
	}
	if err := f.live.Broadcast(ev.Type(), payload); err != nil {
		f.sinkFailed("live", ev.Type(), ev.EventID(), err)
	}
}
