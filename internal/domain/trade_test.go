package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	lower := "0xde709f2102306220921060314715629080e2fb77"
	upper := "0xDE709F2102306220921060314715629080E2FB77"

	a, err := ParseAddress(lower)
	require.NoError(t, err)
	b, err := ParseAddress(upper)
	require.NoError(t, err)
	assert.Equal(t, a, b, "equality is case-insensitive")
	// Hex() renders EIP-55 checksum casing.
	assert.Equal(t, "0xDe709F2102306220921060314715629080e2Fb77", a.Hex())

	for _, bad := range []string{"", "0x123", "de709f2102306220921060314715629080e2fb77zz", "0xde709f2102306220921060314715629080e2fb"} {
		_, err := ParseAddress(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParseTxHash(t *testing.T) {
	h, err := ParseTxHash("0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Len(t, h.Bytes(), 32)

	for _, bad := range []string{"", "ab00", "0xab", "0x" + "zz" + "00000000000000000000000000000000000000000000000000000000000000"} {
		_, err := ParseTxHash(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestEffectivePrice(t *testing.T) {
	tr := testTrade(t, 1_700_000_000, true, "100", "2", "0.01", "0.02")
	assert.Equal(t, "0.02", tr.EffectivePrice().String())

	zero := testTrade(t, 1_700_000_000, true, "0", "0", "0.01", "0.02")
	assert.Equal(t, "0.02", zero.EffectivePrice().String(), "zero-token trade falls back to price_after")
}

func TestPriceImpact(t *testing.T) {
	tr := testTrade(t, 1_700_000_000, true, "100", "2", "0.01", "0.02")
	assert.Equal(t, "1", tr.PriceImpact().String())

	sentinel := testTrade(t, 1_700_000_000, true, "100", "2", "0", "0.02")
	assert.True(t, sentinel.PriceImpact().IsZero())
}

func TestIsLarge(t *testing.T) {
	tr := testTrade(t, 1_700_000_000, true, "100", "2", "0.01", "0.02")
	assert.True(t, tr.IsLarge(dec(t, "1")))
	assert.True(t, tr.IsLarge(dec(t, "2")))
	assert.False(t, tr.IsLarge(dec(t, "2.5")))
}

func TestTradeRecordStringifiesDecimals(t *testing.T) {
	tr := testTrade(t, 1_700_000_000, false, "50", "0.25", "0.02", "0.005")
	r := tr.Record()
	assert.Equal(t, "50", r.TokenAmount)
	assert.Equal(t, "0.25", r.EthAmount)
	assert.Equal(t, "0.005", r.PriceAfter)
	assert.False(t, r.IsBuy)
	assert.Equal(t, int64(1_700_000_000), r.Timestamp)
}
