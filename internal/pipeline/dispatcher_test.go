package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xpads/curvewatch/internal/aggregate"
	"github.com/0xpads/curvewatch/internal/domain"
	"github.com/0xpads/curvewatch/internal/metrics"
	"github.com/0xpads/curvewatch/internal/registry"
)

var (
	plToken = common.HexToAddress("0x1111111111111111111111111111111111111111")
	plCurve = common.HexToAddress("0x2222222222222222222222222222222222222222")
	plUser  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type publishedTrade struct {
	ev      domain.TradeExecuted
	md      *domain.MarketData
	updates []aggregate.Update
}

type fakePublisher struct {
	trades     []publishedTrade
	curves     []domain.CurveDeployed
	burns      []domain.BurnRecorded
	lifecycles []string
	panicOnce  bool
}

func (f *fakePublisher) PublishTrade(ctx context.Context, ev domain.TradeExecuted, md *domain.MarketData, updates []aggregate.Update) {
	if f.panicOnce {
		f.panicOnce = false
		panic("sink blew up")
	}
	f.trades = append(f.trades, publishedTrade{ev: ev, md: md, updates: updates})
}

func (f *fakePublisher) PublishCurve(ctx context.Context, ev domain.CurveDeployed) {
	f.curves = append(f.curves, ev)
}

func (f *fakePublisher) PublishBurn(ctx context.Context, ev domain.BurnRecorded) {
	f.burns = append(f.burns, ev)
}

func (f *fakePublisher) PublishLifecycle(ctx context.Context, ev domain.Event, payload interface{}) {
	f.lifecycles = append(f.lifecycles, ev.Type())
}

type fakeAlerts struct{ checked int }

func (f *fakeAlerts) CheckTrade(ctx context.Context, t *domain.Trade) { f.checked++ }

type fakeStore struct {
	recs []domain.TradeRecord
	err  error
}

func (f *fakeStore) AppendTrade(ctx context.Context, token common.Address, rec domain.TradeRecord) error {
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	return nil
}

type emptyWindow struct{}

func (emptyWindow) TradesInWindow(ctx context.Context, token common.Address, from, to int64) ([]domain.TradeRecord, error) {
	return nil, nil
}

type fixture struct {
	disp   *Dispatcher
	reg    *registry.Registry
	pub    *fakePublisher
	alerts *fakeAlerts
	store  *fakeStore
	met    *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New()
	pub := &fakePublisher{}
	al := &fakeAlerts{}
	store := &fakeStore{}
	met := metrics.New(prometheus.NewRegistry())
	agg := aggregate.New([]domain.Interval{domain.Interval1m, domain.Interval1h}, nil)
	disp := NewDispatcher(reg, agg, aggregate.NewStats(emptyWindow{}), store, pub, al, met)
	return &fixture{disp: disp, reg: reg, pub: pub, alerts: al, store: store, met: met}
}

func (fx *fixture) registerCurve() {
	fx.reg.Add(&domain.BondingCurve{
		Token:  plToken,
		Curve:  plCurve,
		Name:   "Pad Token",
		Symbol: "PAD",
		Active: true,
		State:  domain.CurveActive,
	})
}

func plTrade(tx string) *domain.Trade {
	return &domain.Trade{
		Token:       plToken,
		Curve:       plCurve,
		User:        plUser,
		Direction:   domain.Buy,
		TokenAmount: decimal.RequireFromString("100"),
		EthAmount:   decimal.RequireFromString("2"),
		PriceBefore: decimal.RequireFromString("0.01"),
		PriceAfter:  decimal.RequireFromString("0.02"),
		TotalSupply: decimal.RequireFromString("1000"),
		TxHash:      common.HexToHash(tx),
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestTradeFlowsThroughThePipeline(t *testing.T) {
	fx := newFixture(t)
	fx.registerCurve()

	in := domain.TradeExecuted{Meta: domain.NewMeta(), Trade: plTrade("0x01")}
	fx.disp.Handle(context.Background(), in)

	require.Len(t, fx.pub.trades, 1)
	got := fx.pub.trades[0]
	assert.Equal(t, in.EventID(), got.ev.EventID(), "the envelope travels with the trade to the publisher")
	assert.Len(t, got.updates, 2, "one candle update per configured interval")
	require.NotNil(t, got.md)
	assert.Equal(t, "0.02", got.md.CurrentPrice.String())
	assert.Len(t, fx.store.recs, 1)
	assert.Equal(t, 1, fx.alerts.checked)

	curve, ok := fx.reg.Get(plCurve)
	require.True(t, ok)
	assert.Equal(t, uint64(1), curve.TotalTrades)
	assert.Equal(t, "0.02", curve.CurrentPrice.String())
}

func TestCompanionTradeEventSuppressed(t *testing.T) {
	fx := newFixture(t)
	fx.registerCurve()

	// Same transaction decoded twice: the detailed Trade first, then
	// the fee-bearing companion.
	fx.disp.Handle(context.Background(), domain.TradeExecuted{Meta: domain.NewMeta(), Trade: plTrade("0xaa")})
	fx.disp.Handle(context.Background(), domain.TradeExecuted{Meta: domain.NewMeta(), Trade: plTrade("0xaa")})

	assert.Len(t, fx.pub.trades, 1)
	assert.Len(t, fx.store.recs, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.met.DuplicatesDropped))
}

func TestCurveDeployRegistersOnce(t *testing.T) {
	fx := newFixture(t)
	ev := domain.CurveDeployed{Meta: domain.NewMeta(), Curve: &domain.BondingCurve{
		Token: plToken,
		Curve: plCurve,
	}}

	fx.disp.Handle(context.Background(), ev)
	fx.disp.Handle(context.Background(), ev)

	assert.Len(t, fx.pub.curves, 1)
	assert.Equal(t, 1, fx.reg.Len())
}

func TestMigrationFlagsCurveButTradesStillFlow(t *testing.T) {
	fx := newFixture(t)
	fx.registerCurve()

	fx.disp.Handle(context.Background(), domain.MigrationCompleted{
		Meta:  domain.NewMeta(),
		Curve: plCurve,
		Pool:  common.HexToAddress("0x5555555555555555555555555555555555555555"),
	})

	curve, ok := fx.reg.Get(plCurve)
	require.True(t, ok)
	assert.Equal(t, domain.CurveMigrated, curve.State)
	assert.False(t, curve.Active)
	assert.Contains(t, fx.pub.lifecycles, "MigrationCompleted")

	// Trades after migration are accepted, just flagged.
	fx.disp.Handle(context.Background(), domain.TradeExecuted{Meta: domain.NewMeta(), Trade: plTrade("0x02")})
	assert.Len(t, fx.pub.trades, 1)
}

func TestMigrationStartedIsAnnouncedWithoutStateChange(t *testing.T) {
	fx := newFixture(t)
	fx.registerCurve()

	fx.disp.Handle(context.Background(), domain.MigrationStarted{
		Meta:        domain.NewMeta(),
		Curve:       plCurve,
		ReserveEth:  decimal.RequireFromString("40"),
		TokenAmount: decimal.RequireFromString("200000"),
		TargetDEX:   common.HexToAddress("0x6666666666666666666666666666666666666666"),
		Timestamp:   1_700_000_000,
	})

	assert.Contains(t, fx.pub.lifecycles, "MigrationStarted")
	// Only MigrationCompleted flips the state.
	curve, ok := fx.reg.Get(plCurve)
	require.True(t, ok)
	assert.Equal(t, domain.CurveActive, curve.State)
}

func TestReadyForDEXAdvancesState(t *testing.T) {
	fx := newFixture(t)
	fx.registerCurve()

	fx.disp.Handle(context.Background(), domain.ReadyForDEX{
		Meta:           domain.NewMeta(),
		Curve:          plCurve,
		McapOrReserves: decimal.RequireFromString("40"),
	})

	curve, ok := fx.reg.Get(plCurve)
	require.True(t, ok)
	assert.Equal(t, domain.CurveReadyForDEX, curve.State)
}

func TestBurnRoutedToPublisher(t *testing.T) {
	fx := newFixture(t)
	fx.disp.Handle(context.Background(), domain.BurnRecorded{
		Meta:   domain.NewMeta(),
		Token:  plToken,
		Burner: plUser,
		Amount: decimal.RequireFromString("5"),
	})
	assert.Len(t, fx.pub.burns, 1)
}

func TestHandlerPanicIsContained(t *testing.T) {
	fx := newFixture(t)
	fx.registerCurve()
	fx.pub.panicOnce = true

	assert.NotPanics(t, func() {
		fx.disp.Handle(context.Background(), domain.TradeExecuted{Meta: domain.NewMeta(), Trade: plTrade("0x03")})
	})
	// The next event is unaffected.
	fx.disp.Handle(context.Background(), domain.TradeExecuted{Meta: domain.NewMeta(), Trade: plTrade("0x04")})
	assert.Len(t, fx.pub.trades, 1)
}
