package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/0xpads/curvewatch/internal/domain"
)

const statsWindow = 24 * time.Hour

// TradeWindow reads the per-token time-ordered trade records back from
// the cache.
type TradeWindow interface {
	TradesInWindow(ctx context.Context, token common.Address, from, to int64) ([]domain.TradeRecord, error)
}

// Stats recomputes the rolling 24h market summary for a token.
type Stats struct {
	window TradeWindow
}

func NewStats(window TradeWindow) *Stats {
	return &Stats{window: window}
}

// Compute derives 24h stats for the trade's token. An empty window
// yields zeroed change/volume fields, but market cap still reflects
// the current trade.
func (s *Stats) Compute(ctx context.Context, t *domain.Trade) (*domain.MarketData, error) {
	now := time.Now().UTC()
	recs, err := s.window.TradesInWindow(ctx, t.Token, now.Add(-statsWindow).Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("market stats: %w", err)
	}

	md := &domain.MarketData{
		Token:        t.Token,
		CurrentPrice: t.PriceAfter,
		MarketCap:    t.TotalSupply.Mul(t.PriceAfter),
		LastUpdated:  now,
	}
	if len(recs) == 0 {
		return md, nil
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp < recs[j].Timestamp })

	parse := func(s string) decimal.Decimal {
		d, err := decimal.NewFromString(s)
		if err != nil {
			log.Warn().Str("token", t.Token.Hex()).Str("value", s).Msg("unreadable decimal in trade record")
			return decimal.Zero
		}
		return d
	}

	firstBefore := parse(recs[0].PriceBefore)
	lastAfter := parse(recs[len(recs)-1].PriceAfter)
	md.PriceChange24h = lastAfter.Sub(firstBefore)
	if !firstBefore.IsZero() {
		md.PriceChangePct24h = md.PriceChange24h.Div(firstBefore).Mul(decimal.NewFromInt(100))
	}
	for _, r := range recs {
		md.Volume24h = md.Volume24h.Add(parse(r.TokenAmount))
		md.VolumeEth24h = md.VolumeEth24h.Add(parse(r.EthAmount))
	}
	md.Trades24h = uint32(len(recs))
	return md, nil
}
