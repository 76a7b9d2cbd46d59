package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/0xpads/curvewatch/internal/config"
	"github.com/0xpads/curvewatch/internal/domain"
)

// ErrNotConnected is returned for operations that need a live session.
var ErrNotConnected = errors.New("chain: not connected")

const (
	pollInterval   = 500 * time.Millisecond
	rpcTimeout     = 10 * time.Second
	backoffInitial = time.Second
	backoffCap     = 30 * time.Second

	// blockTimeRetention bounds the header-time cache to the most
	// recent blocks; anything older than tip-retention is pruned.
	blockTimeRetention = 1024
)

// Registrar is the registry surface the client needs: seeding from
// discovery and observing additions to widen the log filter.
type Registrar interface {
	Add(curve *domain.BondingCurve) bool
	Get(curve common.Address) (*domain.BondingCurve, bool)
	Subscribe(fn func(curve common.Address))
}

// Client owns the single WebSocket session to the chain node. It polls
// log filters for the factory, every registered curve and its token,
// and yields raw logs in ascending (block, log index) order.
type Client struct {
	cfg     config.Blockchain
	reg     Registrar
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	factory    common.Address
	factorySet bool

	mu         sync.RWMutex
	eth        *ethclient.Client
	latest     uint64
	lastPolled uint64
	watch      map[common.Address]struct{}
	blockTimes map[uint64]uint64
	runErr     error

	logs chan types.Log

	// OnReconnect, when set, is called once per successful reconnect.
	OnReconnect func()
}

// deployedCurve mirrors the getDeployedCurves tuple; field order is
// load-bearing (curveAddress is the third component).
type deployedCurve struct {
	TokenAddress common.Address
	Creator      common.Address
	CurveAddress common.Address
	Name         string
	Symbol       string
	DeployedAt   *big.Int
	IsActive     bool
	IsApproved   bool
}

func NewClient(cfg config.Blockchain, reg Registrar) (*Client, error) {
	c := &Client{
		cfg:        cfg,
		reg:        reg,
		limiter:    rate.NewLimiter(rate.Every(pollInterval), 1),
		watch:      make(map[common.Address]struct{}),
		blockTimes: make(map[uint64]uint64),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "factory-views",
			Timeout: 30 * time.Second,
		}),
	}
	if cfg.FactoryAddress != "" {
		addr, err := domain.ParseAddress(cfg.FactoryAddress)
		if err != nil {
			return nil, fmt.Errorf("chain: factory address: %w", err)
		}
		c.factory = addr
		c.factorySet = true
		c.watch[addr] = struct{}{}
	}
	// New curves get their filter installed as soon as the registry
	// learns about them, whether from discovery or a deploy event.
	reg.Subscribe(c.watchCurve)
	return c, nil
}

// Factory returns the configured factory address, if any.
func (c *Client) Factory() (common.Address, bool) {
	return c.factory, c.factorySet
}

func (c *Client) watchCurve(curve common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watch[curve] = struct{}{}
	if rec, ok := c.reg.Get(curve); ok {
		// The fan token emits CommunityBurn; watch it alongside.
		c.watch[rec.Token] = struct{}{}
	}
	log.Debug().Str("curve", curve.Hex()).Msg("log filter installed")
}

// Connect dials the node, verifies the chain id and caches the tip.
// Polling resumes from that tip, so a reconnect never replays the
// disconnect window.
func (c *Client) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	eth, err := ethclient.DialContext(dialCtx, c.cfg.WsURL)
	if err != nil {
		return fmt.Errorf("chain connect %s: %w", c.cfg.WsURL, err)
	}
	chainID, err := eth.ChainID(dialCtx)
	if err != nil {
		eth.Close()
		return fmt.Errorf("chain connect: chain id query: %w", err)
	}
	if chainID.Int64() != c.cfg.ChainID {
		eth.Close()
		return fmt.Errorf("chain connect: chain id mismatch: want %d, got %s", c.cfg.ChainID, chainID)
	}
	tip, err := eth.BlockNumber(dialCtx)
	if err != nil {
		eth.Close()
		return fmt.Errorf("chain connect: tip query: %w", err)
	}

	c.mu.Lock()
	if c.eth != nil {
		c.eth.Close()
	}
	c.eth = eth
	c.latest = tip
	c.lastPolled = tip
	c.mu.Unlock()

	log.Info().
		Str("url", c.cfg.WsURL).
		Int64("chain_id", c.cfg.ChainID).
		Uint64("tip", tip).
		Msg("connected to chain node")
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
}

func (c *Client) client() *ethclient.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eth
}

// LatestBlock returns the cached tip.
func (c *Client) LatestBlock() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Err reports the terminal error that ended the polling loop, if any.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runErr
}

// Health pings the node within the RPC deadline.
func (c *Client) Health(ctx context.Context) error {
	eth := c.client()
	if eth == nil {
		return ErrNotConnected
	}
	pingCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	if _, err := eth.BlockNumber(pingCtx); err != nil {
		return fmt.Errorf("chain health: %w", err)
	}
	return nil
}

// DiscoverCurves runs the one-shot getDeployedCurves view and seeds the
// registry. Skips silently when no factory is configured. Returns the
// number of newly registered curves.
func (c *Client) DiscoverCurves(ctx context.Context) (int, error) {
	if !c.factorySet {
		log.Info().Msg("no factory configured; skipping curve discovery")
		return 0, nil
	}
	eth := c.client()
	if eth == nil {
		return 0, ErrNotConnected
	}
	data, err := factoryABI.Pack("getDeployedCurves")
	if err != nil {
		return 0, fmt.Errorf("pack getDeployedCurves: %w", err)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
		defer cancel()
		return eth.CallContract(callCtx, ethereum.CallMsg{To: &c.factory, Data: data}, nil)
	})
	if err != nil {
		return 0, fmt.Errorf("call getDeployedCurves: %w", err)
	}
	outs, err := factoryABI.Unpack("getDeployedCurves", result.([]byte))
	if err != nil {
		return 0, fmt.Errorf("unpack getDeployedCurves: %w", err)
	}
	curves := *abi.ConvertType(outs[0], new([]deployedCurve)).(*[]deployedCurve)

	added := 0
	for _, dc := range curves {
		rec := &domain.BondingCurve{
			Token:      dc.TokenAddress,
			Curve:      dc.CurveAddress,
			Creator:    dc.Creator,
			Name:       dc.Name,
			Symbol:     dc.Symbol,
			Active:     dc.IsActive,
			State:      domain.CurveActive,
			DeployedAt: time.Unix(dc.DeployedAt.Int64(), 0).UTC(),
		}
		if c.reg.Add(rec) {
			added++
		}
	}
	log.Info().Int("discovered", len(curves)).Int("new", added).Msg("curve discovery complete")
	return added, nil
}

// Subscribe starts the polling loop and returns the raw log sequence.
// The channel closes when the loop ends; Err() then reports whether the
// end was terminal.
func (c *Client) Subscribe(ctx context.Context) (<-chan types.Log, error) {
	if c.client() == nil {
		return nil, ErrNotConnected
	}
	c.logs = make(chan types.Log, 256)
	go c.run(ctx)
	return c.logs, nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.logs)
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		if err := c.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("chain poll failed; reconnecting")
			if err := c.reconnect(ctx); err != nil {
				c.mu.Lock()
				c.runErr = err
				c.mu.Unlock()
				log.Error().Err(err).Msg("chain client giving up")
				return
			}
		}
	}
}

func (c *Client) pollOnce(ctx context.Context) error {
	eth := c.client()
	if eth == nil {
		return ErrNotConnected
	}
	pollCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	tip, err := eth.BlockNumber(pollCtx)
	if err != nil {
		return fmt.Errorf("tip query: %w", err)
	}

	c.mu.Lock()
	c.latest = tip
	last := c.lastPolled
	addrs := make([]common.Address, 0, len(c.watch))
	for a := range c.watch {
		addrs = append(addrs, a)
	}
	c.mu.Unlock()

	if tip <= last {
		return nil
	}
	if len(addrs) == 0 {
		c.setLastPolled(tip)
		return nil
	}

	logs, err := eth.FilterLogs(pollCtx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(last + 1),
		ToBlock:   new(big.Int).SetUint64(tip),
		Addresses: addrs,
		Topics:    [][]common.Hash{watchedTopics()},
	})
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}
	sortLogs(logs)
	c.resolveBlockTimes(pollCtx, eth, logs)
	for _, l := range logs {
		select {
		case c.logs <- l:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.setLastPolled(tip)
	return nil
}

func (c *Client) setLastPolled(tip uint64) {
	c.mu.Lock()
	c.lastPolled = tip
	c.mu.Unlock()
}

// BlockTime returns the cached header timestamp for a block. Trades are
// stamped with chain time, so every poll batch resolves the headers of
// the blocks its logs came from before the logs are handed downstream.
func (c *Client) BlockTime(block uint64) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.blockTimes[block]
	return ts, ok
}

// resolveBlockTimes fetches the header of every distinct block in the
// batch that is not already cached. A failed header fetch is logged and
// skipped; the affected trades fall back to wall-clock stamping.
func (c *Client) resolveBlockTimes(ctx context.Context, eth *ethclient.Client, logs []types.Log) {
	want := make(map[uint64]struct{})
	c.mu.RLock()
	for _, l := range logs {
		if _, ok := c.blockTimes[l.BlockNumber]; !ok {
			want[l.BlockNumber] = struct{}{}
		}
	}
	c.mu.RUnlock()

	for n := range want {
		header, err := eth.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			log.Warn().Uint64("block", n).Err(err).Msg("header fetch failed; trades fall back to wall clock")
			continue
		}
		c.mu.Lock()
		c.blockTimes[n] = header.Time
		c.mu.Unlock()
	}
	c.pruneBlockTimes()
}

func (c *Client) pruneBlockTimes() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest <= blockTimeRetention {
		return
	}
	floor := c.latest - blockTimeRetention
	for n := range c.blockTimes {
		if n < floor {
			delete(c.blockTimes, n)
		}
	}
}

// reconnect retries Connect with exponential backoff, 1s doubling to a
// 30s cap, up to the configured attempt budget.
func (c *Client) reconnect(ctx context.Context) error {
	backoff := backoffInitial
	for attempt := 1; attempt <= c.cfg.MaxReconnectionAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		log.Info().Int("attempt", attempt).Dur("backoff", backoff).Msg("reconnecting to chain node")
		if err := c.Connect(ctx); err != nil {
			log.Warn().Int("attempt", attempt).Err(err).Msg("reconnect attempt failed")
			backoff = nextBackoff(backoff)
			continue
		}
		if c.OnReconnect != nil {
			c.OnReconnect()
		}
		return nil
	}
	return fmt.Errorf("chain reconnect: giving up after %d attempts", c.cfg.MaxReconnectionAttempts)
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

func sortLogs(logs []types.Log) {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}
