package pipeline

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/0xpads/curvewatch/internal/aggregate"
	"github.com/0xpads/curvewatch/internal/domain"
	"github.com/0xpads/curvewatch/internal/metrics"
	"github.com/0xpads/curvewatch/internal/registry"
)

const dedupeCapacity = 4096

// Publisher is the fan-out surface the dispatcher drives.
type Publisher interface {
	PublishTrade(ctx context.Context, ev domain.TradeExecuted, md *domain.MarketData, updates []aggregate.Update)
	PublishCurve(ctx context.Context, ev domain.CurveDeployed)
	PublishBurn(ctx context.Context, ev domain.BurnRecorded)
	PublishLifecycle(ctx context.Context, ev domain.Event, payload interface{})
}

// AlertChecker evaluates alert conditions on accepted trades.
type AlertChecker interface {
	CheckTrade(ctx context.Context, t *domain.Trade)
}

// TradeStore appends accepted trades to the rolling per-token window.
type TradeStore interface {
	AppendTrade(ctx context.Context, token common.Address, rec domain.TradeRecord) error
}

// Dispatcher routes decoded events to their handlers. One event is
// processed at a time; a panic in a handler is contained to that event.
type Dispatcher struct {
	reg    *registry.Registry
	agg    *aggregate.Aggregator
	stats  *aggregate.Stats
	store  TradeStore
	pub    Publisher
	alerts AlertChecker
	met    *metrics.Metrics
	dedupe *txDedupe
}

func NewDispatcher(reg *registry.Registry, agg *aggregate.Aggregator, stats *aggregate.Stats, store TradeStore, pub Publisher, alerts AlertChecker, met *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		reg:    reg,
		agg:    agg,
		stats:  stats,
		store:  store,
		pub:    pub,
		alerts: alerts,
		met:    met,
		dedupe: newTxDedupe(dedupeCapacity),
	}
}

// Handle processes one decoded event.
func (d *Dispatcher) Handle(ctx context.Context, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("event", ev.Type()).Str("event_id", ev.EventID()).Interface("panic", r).Msg("event handler panicked")
		}
	}()
	d.met.EventsReceived.WithLabelValues(ev.Type()).Inc()

	switch e := ev.(type) {
	case domain.TradeExecuted:
		d.handleTrade(ctx, e)

	case domain.CurveDeployed:
		if !d.reg.Add(e.Curve) {
			log.Debug().Str("curve", e.Curve.Curve.Hex()).Msg("deploy event for known curve")
			return
		}
		d.pub.PublishCurve(ctx, e)

	case domain.CurveStatusChanged:
		d.reg.SetActive(e.Token, e.IsActive)
		d.pub.PublishLifecycle(ctx, e, map[string]interface{}{
			"token_address": e.Token.Hex(),
			"is_active":     e.IsActive,
		})

	case domain.MilestoneReached:
		d.pub.PublishLifecycle(ctx, e, map[string]interface{}{
			"curve_address": e.Curve.Hex(),
			"level":         e.Level,
			"reserve_eth":   e.ReserveEth.String(),
			"timestamp":     e.Timestamp,
		})

	case domain.ReadyForDEX:
		d.reg.SetState(e.Curve, domain.CurveReadyForDEX)
		d.pub.PublishLifecycle(ctx, e, map[string]interface{}{
			"curve_address":    e.Curve.Hex(),
			"mcap_or_reserves": e.McapOrReserves.String(),
			"timestamp":        e.Timestamp,
		})

	case domain.MigrationStarted:
		d.pub.PublishLifecycle(ctx, e, map[string]interface{}{
			"curve_address": e.Curve.Hex(),
			"reserve_eth":   e.ReserveEth.String(),
			"token_amount":  e.TokenAmount.String(),
			"target_dex":    e.TargetDEX.Hex(),
			"timestamp":     e.Timestamp,
		})

	case domain.MigrationCompleted:
		d.reg.SetState(e.Curve, domain.CurveMigrated)
		d.pub.PublishLifecycle(ctx, e, map[string]interface{}{
			"curve_address": e.Curve.Hex(),
			"pool_address":  e.Pool.Hex(),
			"eth_used":      e.EthUsed.String(),
			"token_used":    e.TokenUsed.String(),
			"timestamp":     e.Timestamp,
		})

	case domain.CreatorApproved:
		d.pub.PublishLifecycle(ctx, e, map[string]interface{}{
			"creator_address": e.Creator.Hex(),
			"timestamp":       e.Timestamp,
		})

	case domain.CreatorRevoked:
		d.pub.PublishLifecycle(ctx, e, map[string]interface{}{
			"creator_address": e.Creator.Hex(),
			"timestamp":       e.Timestamp,
		})

	case domain.BurnRecorded:
		d.pub.PublishBurn(ctx, e)

	default:
		log.Debug().Str("event", ev.Type()).Msg("event has no handler")
	}
}

func (d *Dispatcher) handleTrade(ctx context.Context, e domain.TradeExecuted) {
	t := e.Trade
	if d.dedupe.Seen(t.TxHash) {
		d.met.DuplicatesDropped.Inc()
		log.Debug().Str("tx", t.TxHash.Hex()).Msg("companion trade event suppressed")
		return
	}

	curve, known := d.reg.RecordTrade(t)
	switch {
	case !known:
		log.Warn().Str("curve", t.Curve.Hex()).Msg("trade for unregistered curve")
	case curve.State == domain.CurveMigrated:
		log.Warn().Str("curve", t.Curve.Hex()).Str("tx", t.TxHash.Hex()).
			Msg("trade on migrated curve")
	}

	// Window append first so the 24h stats below count this trade.
	if err := d.store.AppendTrade(ctx, t.Token, t.Record()); err != nil {
		log.Error().Str("token", t.Token.Hex()).Str("event_id", e.EventID()).Err(err).Msg("trade window append failed")
	}

	updates := d.agg.Apply(ctx, t)
	d.met.TradesProcessed.Inc()
	d.met.CandleUpdates.Add(float64(len(updates)))

	md, err := d.stats.Compute(ctx, t)
	if err != nil {
		log.Warn().Str("token", t.Token.Hex()).Str("event_id", e.EventID()).Err(err).Msg("market stats unavailable for this trade")
		md = nil
	}

	d.pub.PublishTrade(ctx, e, md, updates)
	d.alerts.CheckTrade(ctx, t)
}
