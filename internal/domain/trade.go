// Package domain holds the value model for the bonding-curve listener:
// canonical trades, OHLCV candles, curve records, 24h market summaries
// and the event union dispatched through the pipeline. All monetary
// amounts are 18-digit decimals converted once at the decode boundary.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TradeDirection distinguishes buys from sells.
type TradeDirection int

const (
	Buy TradeDirection = iota
	Sell
)

func (d TradeDirection) IsBuy() bool { return d == Buy }

func (d TradeDirection) String() string {
	if d == Buy {
		return "buy"
	}
	return "sell"
}

// BlockInfo locates a log on chain.
type BlockInfo struct {
	Number    uint64
	Timestamp uint64
	Hash      common.Hash
}

// Trade is the canonical form of one on-chain swap against a bonding
// curve. TokensPurchased/TokensSold logs are canonicalized into this
// shape with zero sentinels for the fields those events do not carry.
type Trade struct {
	Token       common.Address
	Curve       common.Address
	User        common.Address
	Direction   TradeDirection
	TokenAmount decimal.Decimal
	EthAmount   decimal.Decimal
	PriceBefore decimal.Decimal
	PriceAfter  decimal.Decimal
	TotalSupply decimal.Decimal
	Block       BlockInfo
	TxHash      common.Hash
	LogIndex    uint32
	Timestamp   time.Time
}

// EffectivePrice is eth_amount/token_amount, or price_after for a
// zero-token trade.
func (t *Trade) EffectivePrice() decimal.Decimal {
	if t.TokenAmount.IsZero() {
		return t.PriceAfter
	}
	return t.EthAmount.Div(t.TokenAmount)
}

// PriceImpact is |price_after - price_before| / price_before, zero when
// the pre-trade price is unknown.
func (t *Trade) PriceImpact() decimal.Decimal {
	if t.PriceBefore.IsZero() {
		return decimal.Zero
	}
	return t.PriceAfter.Sub(t.PriceBefore).Abs().Div(t.PriceBefore)
}

func (t *Trade) IsLarge(thresholdEth decimal.Decimal) bool {
	return t.EthAmount.GreaterThanOrEqual(thresholdEth)
}

// TradeRecord is the JSON shape written to trade:latest:<token> and
// appended to trades:stream:<token>. Field names are part of the cache
// contract with downstream consumers; decimals are stringified.
type TradeRecord struct {
	TokenAddress string `json:"token_address"`
	CurveAddress string `json:"curve_address"`
	UserAddress  string `json:"user_address"`
	IsBuy        bool   `json:"is_buy"`
	TokenAmount  string `json:"token_amount"`
	EthAmount    string `json:"eth_amount"`
	PriceBefore  string `json:"price_before"`
	PriceAfter   string `json:"price_after"`
	TotalSupply  string `json:"total_supply"`
	BlockNumber  uint64 `json:"block_number"`
	TxHash       string `json:"tx_hash"`
	Timestamp    int64  `json:"timestamp"`
}

// Record flattens the trade into its cache/stream JSON shape.
func (t *Trade) Record() TradeRecord {
	return TradeRecord{
		TokenAddress: t.Token.Hex(),
		CurveAddress: t.Curve.Hex(),
		UserAddress:  t.User.Hex(),
		IsBuy:        t.Direction.IsBuy(),
		TokenAmount:  t.TokenAmount.String(),
		EthAmount:    t.EthAmount.String(),
		PriceBefore:  t.PriceBefore.String(),
		PriceAfter:   t.PriceAfter.String(),
		TotalSupply:  t.TotalSupply.String(),
		BlockNumber:  t.Block.Number,
		TxHash:       t.TxHash.Hex(),
		Timestamp:    t.Timestamp.Unix(),
	}
}
