package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xpads/curvewatch/internal/cache"
	"github.com/0xpads/curvewatch/internal/domain"
)

var alToken = common.HexToAddress("0x1111111111111111111111111111111111111111")

type fakeLive struct {
	rooms      []string
	roomData   []interface{}
	broadcasts []string
	err        error
}

func (f *fakeLive) EmitRoom(room string, data interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.rooms = append(f.rooms, room)
	f.roomData = append(f.roomData, data)
	return nil
}

func (f *fakeLive) Broadcast(event string, data interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.broadcasts = append(f.broadcasts, event)
	return nil
}

func alTrade(eth, after string) *domain.Trade {
	return &domain.Trade{
		Token:       alToken,
		Direction:   domain.Buy,
		TokenAmount: decimal.RequireFromString("100"),
		EthAmount:   decimal.RequireFromString(eth),
		PriceBefore: decimal.RequireFromString("0.01"),
		PriceAfter:  decimal.RequireFromString(after),
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
	}
}

func newEngine(t *testing.T, live LiveSink) (*Engine, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	return NewEngine(cache.NewWithClient(client), live, decimal.RequireFromString("1.0")), mock
}

func TestLargeTradeBroadcast(t *testing.T) {
	live := &fakeLive{}
	e, mock := newEngine(t, live)
	mock.ExpectGet(cache.PriceAlertsKey(alToken)).RedisNil()

	e.CheckTrade(context.Background(), alTrade("2", "0.02"))

	require.Len(t, live.broadcasts, 1)
	assert.Equal(t, "large_trade", live.broadcasts[0])
}

func TestSmallTradeStaysQuiet(t *testing.T) {
	live := &fakeLive{}
	e, mock := newEngine(t, live)
	mock.ExpectGet(cache.PriceAlertsKey(alToken)).RedisNil()

	e.CheckTrade(context.Background(), alTrade("0.5", "0.02"))

	assert.Empty(t, live.broadcasts)
	assert.Empty(t, live.rooms)
}

func TestThresholdIsInclusive(t *testing.T) {
	live := &fakeLive{}
	e, mock := newEngine(t, live)
	mock.ExpectGet(cache.PriceAlertsKey(alToken)).RedisNil()

	e.CheckTrade(context.Background(), alTrade("1.0", "0.02"))

	assert.Len(t, live.broadcasts, 1)
}

func TestPriceAlertsMatchByDirection(t *testing.T) {
	live := &fakeLive{}
	e, mock := newEngine(t, live)

	configs := []PriceAlertConfig{
		{UserID: "u1", ThresholdPrice: "0.015", AlertType: "above"},
		{UserID: "u2", ThresholdPrice: "0.005", AlertType: "below"},
		{UserID: "u3", ThresholdPrice: "not-a-number", AlertType: "above"},
		{UserID: "u4", ThresholdPrice: "0.015", AlertType: "sideways"},
	}
	raw, err := json.Marshal(configs)
	require.NoError(t, err)
	mock.ExpectGet(cache.PriceAlertsKey(alToken)).SetVal(string(raw))

	e.CheckTrade(context.Background(), alTrade("0.5", "0.02"))

	// Only u1 matches: price 0.02 >= 0.015; the below alert does not
	// fire and malformed configs are skipped.
	require.Len(t, live.rooms, 1)
	payload, ok := live.roomData[0].(map[string]interface{})
	require.True(t, ok)
	data, ok := payload["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "u1", data["user_id"])
}

func TestAlertFailuresNeverPropagate(t *testing.T) {
	live := &fakeLive{err: errors.New("socket gone")}
	e, mock := newEngine(t, live)
	mock.ExpectGet(cache.PriceAlertsKey(alToken)).SetErr(errors.New("redis down"))

	// Must not panic and must swallow both sink and cache errors.
	e.CheckTrade(context.Background(), alTrade("2", "0.02"))
}
