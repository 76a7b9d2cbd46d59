package domain

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func testTrade(t *testing.T, ts int64, isBuy bool, tokens, eth, before, after string) *Trade {
	t.Helper()
	dir := Sell
	if isBuy {
		dir = Buy
	}
	return &Trade{
		Token:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Curve:       common.HexToAddress("0x2222222222222222222222222222222222222222"),
		User:        common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Direction:   dir,
		TokenAmount: dec(t, tokens),
		EthAmount:   dec(t, eth),
		PriceBefore: dec(t, before),
		PriceAfter:  dec(t, after),
		TotalSupply: dec(t, "1000"),
		Timestamp:   time.Unix(ts, 0).UTC(),
	}
}

func TestNewCandleOpensAtPriceBefore(t *testing.T) {
	tr := testTrade(t, 1_700_000_000, true, "100", "2", "0.01", "0.02")
	c := NewCandle(tr, Interval1m)
	assert.Equal(t, int64(1_699_999_980), c.BucketTS)
	assert.Equal(t, "0.01", c.Open.String())
	assert.Equal(t, "0.01", c.Close.String())
	assert.Zero(t, c.TradeCount)
}

func TestNewCandleZeroPriceBeforeOpensAtPriceAfter(t *testing.T) {
	tr := testTrade(t, 1_700_000_000, true, "100", "2", "0", "0.02")
	c := NewCandle(tr, Interval1m)
	assert.Equal(t, "0.02", c.Open.String())
}

func TestApplyTradeSingleBuy(t *testing.T) {
	tr := testTrade(t, 1_700_000_000, true, "100", "2", "0.01", "0.02")
	c := NewCandle(tr, Interval1m)
	c.ApplyTrade(tr)

	assert.Equal(t, "0.01", c.Open.String())
	assert.Equal(t, "0.02", c.High.String())
	assert.Equal(t, "0.01", c.Low.String())
	assert.Equal(t, "0.02", c.Close.String())
	assert.Equal(t, "100", c.TotalVolume.String())
	assert.Equal(t, "100", c.BuyVolume.String())
	assert.Equal(t, "0", c.SellVolume.String())
	assert.Equal(t, "2", c.VolumeEth.String())
	assert.Equal(t, uint32(1), c.TradeCount)
}

func TestApplyTradeSameBucketSequence(t *testing.T) {
	first := testTrade(t, 1_700_000_000, true, "100", "2", "0.01", "0.02")
	second := testTrade(t, 1_700_000_030, false, "50", "0.25", "0.02", "0.005")

	c := NewCandle(first, Interval1m)
	c.ApplyTrade(first)
	c.ApplyTrade(second)

	assert.Equal(t, "0.01", c.Open.String())
	assert.Equal(t, "0.02", c.High.String())
	assert.Equal(t, "0.005", c.Low.String())
	assert.Equal(t, "0.005", c.Close.String())
	assert.Equal(t, "150", c.TotalVolume.String())
	assert.Equal(t, "100", c.BuyVolume.String())
	assert.Equal(t, "50", c.SellVolume.String())
	assert.Equal(t, uint32(2), c.TradeCount)
}

func TestApplyTradeZeroTokenAmount(t *testing.T) {
	first := testTrade(t, 1_700_000_000, true, "100", "2", "0.01", "0.02")
	c := NewCandle(first, Interval1m)
	c.ApplyTrade(first)

	zero := testTrade(t, 1_700_000_010, true, "0", "0", "0.02", "0.03")
	c.ApplyTrade(zero)

	assert.Equal(t, "0.03", c.High.String())
	assert.Equal(t, "0.03", c.Close.String())
	assert.Equal(t, "100", c.TotalVolume.String())
	assert.Equal(t, "100", c.BuyVolume.String())
	assert.Equal(t, "0", c.SellVolume.String())
	assert.Equal(t, uint32(2), c.TradeCount)
}

func TestCandleInvariants(t *testing.T) {
	trades := []*Trade{
		testTrade(t, 1_700_000_000, true, "100", "2", "0.01", "0.02"),
		testTrade(t, 1_700_000_010, false, "20", "0.3", "0.02", "0.015"),
		testTrade(t, 1_700_000_020, true, "5", "0.1", "0.015", "0.022"),
		testTrade(t, 1_700_000_035, false, "60", "0.7", "0.022", "0.012"),
	}
	c := NewCandle(trades[0], Interval1m)
	for _, tr := range trades {
		c.ApplyTrade(tr)
	}

	assert.True(t, c.Low.LessThanOrEqual(c.Open))
	assert.True(t, c.Low.LessThanOrEqual(c.Close))
	assert.True(t, c.High.GreaterThanOrEqual(c.Open))
	assert.True(t, c.High.GreaterThanOrEqual(c.Close))
	eps := dec(t, "0.000000000001")
	assert.True(t, c.TotalVolume.Sub(c.BuyVolume.Add(c.SellVolume)).Abs().LessThan(eps))
	// Close reflects the last trade, high/low the extremes of price_after.
	assert.Equal(t, "0.012", c.Close.String())
	assert.Equal(t, "0.022", c.High.String())
	assert.Equal(t, "0.012", c.Low.String())
	assert.Equal(t, uint32(4), c.TradeCount)
}

func TestCandleRecordRoundTrip(t *testing.T) {
	tr := testTrade(t, 1_700_000_000, true, "100", "2", "0.01", "0.02")
	c := NewCandle(tr, Interval5m)
	c.ApplyTrade(tr)

	back, err := CandleFromRecord(c.Record())
	require.NoError(t, err)
	assert.Equal(t, c.Token, back.Token)
	assert.Equal(t, c.Interval, back.Interval)
	assert.Equal(t, c.BucketTS, back.BucketTS)
	assert.True(t, c.Close.Equal(back.Close))
	assert.True(t, c.TotalVolume.Equal(back.TotalVolume))
	assert.Equal(t, c.TradeCount, back.TradeCount)
}
