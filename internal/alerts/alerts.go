// Package alerts watches the accepted trade flow for conditions worth
// pushing immediately: large trades over the configured ETH threshold
// and user price alerts stored under alerts:price:<token>. Alerting is
// best-effort; a failure here never slows the pipeline down.
package alerts

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/0xpads/curvewatch/internal/cache"
	"github.com/0xpads/curvewatch/internal/domain"
)

// LiveSink pushes matched alerts out through the backend socket.
type LiveSink interface {
	EmitRoom(room string, data interface{}) error
	Broadcast(event string, data interface{}) error
}

// PriceAlertConfig is one user-registered threshold, stored as a JSON
// array under alerts:price:<token> by the backend.
type PriceAlertConfig struct {
	UserID         string `json:"user_id"`
	ThresholdPrice string `json:"threshold_price"`
	AlertType      string `json:"alert_type"` // "above" or "below"
}

type Engine struct {
	cache     *cache.Service
	live      LiveSink
	threshold decimal.Decimal
}

func NewEngine(cacheSvc *cache.Service, live LiveSink, thresholdEth decimal.Decimal) *Engine {
	return &Engine{cache: cacheSvc, live: live, threshold: thresholdEth}
}

// CheckTrade evaluates both alert kinds for one accepted trade. It
// never returns an error: alert failures are logged and swallowed.
func (e *Engine) CheckTrade(ctx context.Context, t *domain.Trade) {
	e.checkLargeTrade(t)
	e.checkPriceAlerts(ctx, t)
}

func (e *Engine) checkLargeTrade(t *domain.Trade) {
	if !t.IsLarge(e.threshold) {
		return
	}
	payload := map[string]interface{}{
		"type":          "large_trade",
		"data":          t.Record(),
		"threshold_eth": e.threshold.String(),
	}
	if err := e.live.Broadcast("large_trade", payload); err != nil {
		log.Warn().Str("token", t.Token.Hex()).Err(err).Msg("large trade push failed")
		return
	}
	log.Info().
		Str("token", t.Token.Hex()).
		Str("eth_amount", t.EthAmount.String()).
		Str("threshold", e.threshold.String()).
		Msg("large trade alert")
}

func (e *Engine) checkPriceAlerts(ctx context.Context, t *domain.Trade) {
	var configs []PriceAlertConfig
	found, err := e.cache.GetJSON(ctx, cache.PriceAlertsKey(t.Token), &configs)
	if err != nil {
		log.Warn().Str("token", t.Token.Hex()).Err(err).Msg("price alert lookup failed")
		return
	}
	if !found || len(configs) == 0 {
		return
	}

	for _, cfg := range configs {
		threshold, err := decimal.NewFromString(cfg.ThresholdPrice)
		if err != nil {
			log.Warn().Str("token", t.Token.Hex()).Str("threshold", cfg.ThresholdPrice).
				Msg("skipping unreadable price alert config")
			continue
		}
		if !matches(cfg.AlertType, t.PriceAfter, threshold) {
			continue
		}
		payload := map[string]interface{}{
			"type": "price_alert",
			"data": map[string]interface{}{
				"token_address":   t.Token.Hex(),
				"user_id":         cfg.UserID,
				"alert_type":      cfg.AlertType,
				"threshold_price": threshold.String(),
				"current_price":   t.PriceAfter.String(),
				"timestamp":       t.Timestamp.Unix(),
			},
		}
		if err := e.live.EmitRoom("token:"+t.Token.Hex(), payload); err != nil {
			log.Warn().Str("token", t.Token.Hex()).Str("user", cfg.UserID).Err(err).
				Msg("price alert push failed")
		}
	}
}

func matches(alertType string, price, threshold decimal.Decimal) bool {
	switch alertType {
	case "above":
		return price.GreaterThanOrEqual(threshold)
	case "below":
		return price.LessThanOrEqual(threshold)
	default:
		return false
	}
}
