// Package pipeline wires the components together and supervises their
// lifecycles: connect in dependency order, run the long-lived tasks,
// and shut everything down on the first terminal failure or signal.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/0xpads/curvewatch/internal/aggregate"
	"github.com/0xpads/curvewatch/internal/alerts"
	"github.com/0xpads/curvewatch/internal/backend"
	"github.com/0xpads/curvewatch/internal/cache"
	"github.com/0xpads/curvewatch/internal/chain"
	"github.com/0xpads/curvewatch/internal/config"
	"github.com/0xpads/curvewatch/internal/domain"
	"github.com/0xpads/curvewatch/internal/fanout"
	"github.com/0xpads/curvewatch/internal/metrics"
	"github.com/0xpads/curvewatch/internal/ops"
	"github.com/0xpads/curvewatch/internal/registry"
)

const (
	shutdownGrace     = 5 * time.Second
	cleanupInterval   = time.Hour
	cleanupWindow     = 24 * time.Hour
	chartHistoryLimit = 100
	healthTimeout     = 5 * time.Second
)

// Supervisor owns every component and their task goroutines.
type Supervisor struct {
	cfg     *config.Config
	version string

	cache   *cache.Service
	reg     *registry.Registry
	chain   *chain.Client
	decoder *chain.Decoder
	backend *backend.Client
	disp    *Dispatcher
	met     *metrics.Metrics
	ops     *ops.Server
}

func New(cfg *config.Config, version string) (*Supervisor, error) {
	promReg := prometheus.NewRegistry()
	met := metrics.New(promReg)

	cacheSvc, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	reg := registry.New()
	chainCli, err := chain.NewClient(cfg.Blockchain, reg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	var factory *common.Address
	if addr, ok := chainCli.Factory(); ok {
		factory = &addr
	}
	decoder := chain.NewDecoder(factory, reg, chainCli)

	intervals, err := cfg.Processing.Intervals()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	agg := aggregate.New(intervals, cacheSvc)
	stats := aggregate.NewStats(cacheSvc)

	backendCli := backend.NewClient(cfg.Websocket, version)
	fan := fanout.New(cacheSvc, backendCli, met)

	threshold, err := cfg.Processing.LargeTradeThreshold()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	alertEngine := alerts.NewEngine(cacheSvc, backendCli, threshold)

	s := &Supervisor{
		cfg:     cfg,
		version: version,
		cache:   cacheSvc,
		reg:     reg,
		chain:   chainCli,
		decoder: decoder,
		backend: backendCli,
		disp:    NewDispatcher(reg, agg, stats, cacheSvc, fan, alertEngine, met),
		met:     met,
	}
	s.ops = ops.NewServer(cfg.Ops.Port, version, s.healthSnapshot, promReg)

	chainCli.OnReconnect = met.Reconnects.Inc
	backendCli.OnDrop = met.LiveDrops.Inc
	backendCli.OnChartData = s.answerChartData
	backendCli.OnMarketData = s.answerMarketData
	return s, nil
}

// Run brings the service up in dependency order and supervises it until
// ctx is cancelled or a task fails terminally.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.cache.Connect(ctx); err != nil {
		return err
	}
	defer s.cache.Close()

	if err := s.chain.Connect(ctx); err != nil {
		return err
	}
	defer s.chain.Close()

	// Discovery failure is a degraded start, not a fatal one: deploy
	// events keep registering curves as they arrive.
	if _, err := s.chain.DiscoverCurves(ctx); err != nil {
		log.Warn().Err(err).Msg("curve discovery failed; relying on deploy events")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logs, err := s.chain.Subscribe(runCtx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	fail := func(err error) {
		select {
		case errCh <- err:
		default:
		}
		cancel()
	}

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		s.backend.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		if err := s.ops.Run(runCtx); err != nil {
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		s.dispatch(runCtx, logs, fail)
	}()
	go func() {
		defer wg.Done()
		s.cleanupLoop(runCtx)
	}()
	go func() {
		defer wg.Done()
		s.healthLoop(runCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("terminal task failure; shutting down")
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all tasks stopped")
	case <-time.After(shutdownGrace):
		log.Warn().Msg("shutdown grace elapsed with tasks still running")
	}
	return runErr
}

// dispatch consumes the raw log sequence until the chain client closes
// it. A closed channel with a terminal chain error brings the service
// down; decode errors are per-log.
func (s *Supervisor) dispatch(ctx context.Context, logs <-chan types.Log, fail func(error)) {
	for vLog := range logs {
		ev, err := s.decoder.Decode(vLog)
		if err != nil {
			logDecodeFailure(s.met, vLog, err)
			continue
		}
		s.disp.Handle(ctx, ev)
	}
	if err := s.chain.Err(); err != nil {
		fail(fmt.Errorf("chain ingestion: %w", err))
	}
}

// logDecodeFailure records why a log was dropped. Unwatched topics are
// routine noise; a watched address the decoder cannot place is not, so
// it surfaces as a warning.
func logDecodeFailure(met *metrics.Metrics, vLog types.Log, err error) {
	switch {
	case errors.Is(err, chain.ErrReorg):
		log.Debug().Str("tx", vLog.TxHash.Hex()).Msg("dropping reorged log")
	case errors.Is(err, chain.ErrUnknownAddress):
		log.Warn().Str("address", vLog.Address.Hex()).Str("tx", vLog.TxHash.Hex()).Msg("dropping log from unknown address")
	case errors.Is(err, chain.ErrUnknownTopic):
		log.Debug().Err(err).Msg("ignoring log for unwatched topic")
	default:
		met.DecodeFailures.Inc()
		log.Warn().Str("tx", vLog.TxHash.Hex()).Err(err).Msg("log decode failed")
	}
}

func (s *Supervisor) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.cache.CleanupOlderThan(ctx, cleanupWindow); err != nil {
				log.Warn().Err(err).Msg("cache cleanup failed")
			}
		}
	}
}

func (s *Supervisor) healthLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Blockchain.HeartbeatIntervalS) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			components := s.healthSnapshot(ctx)
			for name, healthy := range components {
				if !healthy {
					log.Warn().Str("component", name).Msg("component unhealthy")
				}
			}
		}
	}
}

// healthSnapshot samples every component and mirrors the result into
// the component_up gauges.
func (s *Supervisor) healthSnapshot(ctx context.Context) map[string]bool {
	sampleCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	components := map[string]bool{
		"cache":   s.cache.Health(sampleCtx) == nil,
		"chain":   s.chain.Health(sampleCtx) == nil,
		"backend": s.backend.Healthy(),
	}
	for name, healthy := range components {
		v := 0.0
		if healthy {
			v = 1.0
		}
		s.met.ComponentUp.WithLabelValues(name).Set(v)
	}
	return components
}

func (s *Supervisor) answerChartData(req backend.DataRequest) (interface{}, bool) {
	token, err := domain.ParseAddress(req.TokenAddress)
	if err != nil {
		return nil, false
	}
	interval, err := domain.ParseInterval(req.Interval)
	if err != nil {
		interval = domain.Interval1m
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	recs, err := s.cache.RecentCandles(ctx, token, interval, chartHistoryLimit)
	if err != nil {
		log.Warn().Str("token", token.Hex()).Err(err).Msg("chart data lookup failed")
		return nil, false
	}
	return map[string]interface{}{
		"type":          "chart_data",
		"token_address": token.Hex(),
		"interval":      interval.String(),
		"candles":       recs,
	}, true
}

func (s *Supervisor) answerMarketData(req backend.DataRequest) (interface{}, bool) {
	token, err := domain.ParseAddress(req.TokenAddress)
	if err != nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	var rec domain.MarketRecord
	found, err := s.cache.GetJSON(ctx, cache.MarketKey(token), &rec)
	if err != nil {
		log.Warn().Str("token", token.Hex()).Err(err).Msg("market data lookup failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	return map[string]interface{}{"type": "market_data", "data": rec}, true
}
