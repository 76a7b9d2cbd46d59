package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bucket for a (token, interval) pair.
type Candle struct {
	Token       common.Address
	Interval    Interval
	BucketTS    int64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	TotalVolume decimal.Decimal
	BuyVolume   decimal.Decimal
	SellVolume  decimal.Decimal
	VolumeEth   decimal.Decimal
	TradeCount  uint32
}

// NewCandle opens a bucket at the trade's floored timestamp. The open
// is price_before, or price_after when the source event did not carry a
// pre-trade price.
func NewCandle(t *Trade, interval Interval) *Candle {
	open := t.PriceBefore
	if open.IsZero() {
		open = t.PriceAfter
	}
	return &Candle{
		Token:    t.Token,
		Interval: interval,
		BucketTS: interval.Floor(t.Timestamp.Unix()),
		Open:     open,
		High:     open,
		Low:      open,
		Close:    open,
	}
}

// ApplyTrade folds one trade into the candle. A zero-token trade still
// moves high/low/close and bumps the trade count, but leaves the
// directional volumes untouched.
func (c *Candle) ApplyTrade(t *Trade) {
	price := t.PriceAfter
	if price.GreaterThan(c.High) {
		c.High = price
	}
	if price.LessThan(c.Low) {
		c.Low = price
	}
	c.Close = price
	c.TotalVolume = c.TotalVolume.Add(t.TokenAmount)
	if t.Direction.IsBuy() {
		c.BuyVolume = c.BuyVolume.Add(t.TokenAmount)
	} else {
		c.SellVolume = c.SellVolume.Add(t.TokenAmount)
	}
	c.VolumeEth = c.VolumeEth.Add(t.EthAmount)
	c.TradeCount++
}

// CandleRecord is the JSON shape for candles:<token>:<interval> members
// and candle payloads pushed to the backend.
type CandleRecord struct {
	TokenAddress string `json:"token_address"`
	Interval     string `json:"interval"`
	Timestamp    int64  `json:"timestamp"`
	Open         string `json:"open"`
	High         string `json:"high"`
	Low          string `json:"low"`
	Close        string `json:"close"`
	Volume       string `json:"volume"`
	VolumeEth    string `json:"volume_eth"`
	Trades       uint32 `json:"trades"`
	BuyVolume    string `json:"buy_volume"`
	SellVolume   string `json:"sell_volume"`
}

func (c *Candle) Record() CandleRecord {
	return CandleRecord{
		TokenAddress: c.Token.Hex(),
		Interval:     c.Interval.String(),
		Timestamp:    c.BucketTS,
		Open:         c.Open.String(),
		High:         c.High.String(),
		Low:          c.Low.String(),
		Close:        c.Close.String(),
		Volume:       c.TotalVolume.String(),
		VolumeEth:    c.VolumeEth.String(),
		Trades:       c.TradeCount,
		BuyVolume:    c.BuyVolume.String(),
		SellVolume:   c.SellVolume.String(),
	}
}

// CandleFromRecord rebuilds a candle from its cache JSON shape, used to
// warm the aggregator after a restart.
func CandleFromRecord(r CandleRecord) (*Candle, error) {
	token, err := ParseAddress(r.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("candle record: %w", err)
	}
	interval, err := ParseInterval(r.Interval)
	if err != nil {
		return nil, fmt.Errorf("candle record: %w", err)
	}
	c := &Candle{Token: token, Interval: interval, BucketTS: r.Timestamp, TradeCount: r.Trades}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&c.Open, r.Open}, {&c.High, r.High}, {&c.Low, r.Low}, {&c.Close, r.Close},
		{&c.TotalVolume, r.Volume}, {&c.VolumeEth, r.VolumeEth},
		{&c.BuyVolume, r.BuyVolume}, {&c.SellVolume, r.SellVolume},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("candle record: %w", err)
		}
		*f.dst = d
	}
	return c, nil
}
