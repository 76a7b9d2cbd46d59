package chain

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xpads/curvewatch/internal/config"
	"github.com/0xpads/curvewatch/internal/domain"
	"github.com/0xpads/curvewatch/internal/registry"
)

func TestSortLogsOrdersByBlockThenIndex(t *testing.T) {
	logs := []types.Log{
		{BlockNumber: 2, Index: 0},
		{BlockNumber: 1, Index: 5},
		{BlockNumber: 1, Index: 1},
		{BlockNumber: 3, Index: 2},
	}
	sortLogs(logs)
	assert.Equal(t, uint64(1), logs[0].BlockNumber)
	assert.Equal(t, uint(1), logs[0].Index)
	assert.Equal(t, uint(5), logs[1].Index)
	assert.Equal(t, uint64(2), logs[2].BlockNumber)
	assert.Equal(t, uint64(3), logs[3].BlockNumber)
}

func TestNextBackoffDoublesToCap(t *testing.T) {
	d := backoffInitial
	var seen []time.Duration
	for i := 0; i < 7; i++ {
		seen = append(seen, d)
		d = nextBackoff(d)
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}, seen)
}

func TestNewClientRejectsBadFactory(t *testing.T) {
	_, err := NewClient(config.Blockchain{
		WsURL:          "ws://localhost:8545",
		ChainID:        31337,
		FactoryAddress: "0xnope",
	}, registry.New())
	assert.Error(t, err)
}

func TestNewClientWatchesRegistryAdditions(t *testing.T) {
	reg := registry.New()
	c, err := NewClient(config.Blockchain{
		WsURL:                   "ws://localhost:8545",
		ChainID:                 31337,
		FactoryAddress:          factoryAddr.Hex(),
		MaxReconnectionAttempts: 10,
	}, reg)
	require.NoError(t, err)

	c.mu.RLock()
	_, watchingFactory := c.watch[factoryAddr]
	before := len(c.watch)
	c.mu.RUnlock()
	assert.True(t, watchingFactory)
	assert.Equal(t, 1, before)

	reg.Add(&domain.BondingCurve{Token: tokenAddr, Curve: curveAddr, Active: true})

	c.mu.RLock()
	_, watchingCurve := c.watch[curveAddr]
	_, watchingToken := c.watch[tokenAddr]
	c.mu.RUnlock()
	assert.True(t, watchingCurve, "curve filter installed on registry add")
	assert.True(t, watchingToken, "fan token watched for burn events")
}

func TestBlockTimeCacheServesAndPrunes(t *testing.T) {
	c, err := NewClient(config.Blockchain{
		WsURL:                   "ws://localhost:8545",
		ChainID:                 31337,
		MaxReconnectionAttempts: 10,
	}, registry.New())
	require.NoError(t, err)

	c.mu.Lock()
	c.blockTimes[100] = 1_700_000_000
	c.blockTimes[5000] = 1_700_060_000
	c.latest = 5000 + blockTimeRetention
	c.mu.Unlock()

	ts, ok := c.BlockTime(100)
	require.True(t, ok)
	assert.Equal(t, uint64(1_700_000_000), ts)
	_, ok = c.BlockTime(101)
	assert.False(t, ok)

	c.pruneBlockTimes()

	_, ok = c.BlockTime(100)
	assert.False(t, ok, "blocks behind the retention window are dropped")
	_, ok = c.BlockTime(5000)
	assert.True(t, ok)
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c, err := NewClient(config.Blockchain{
		WsURL:                   "ws://localhost:8545",
		ChainID:                 31337,
		MaxReconnectionAttempts: 10,
	}, registry.New())
	require.NoError(t, err)

	_, err = c.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, c.Health(context.Background()), ErrNotConnected)
}
