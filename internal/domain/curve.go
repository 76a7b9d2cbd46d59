package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CurveState tracks the observable lifecycle of a bonding curve. Only
// Active and ReadyForDEX curves are expected to trade; trades on a
// Migrated curve are accepted but flagged.
type CurveState int

const (
	CurveActive CurveState = iota
	CurveReadyForDEX
	CurveMigrated
)

func (s CurveState) String() string {
	switch s {
	case CurveReadyForDEX:
		return "ready_for_dex"
	case CurveMigrated:
		return "migrated"
	default:
		return "active"
	}
}

// BondingCurve is the registry's record of one deployed curve contract.
// One curve per token; curve→token is 1:1 while the curve is active.
type BondingCurve struct {
	Token          common.Address
	Curve          common.Address
	Creator        common.Address
	Name           string
	Symbol         string
	TotalSupply    decimal.Decimal
	CurrentSupply  decimal.Decimal
	ReserveBalance decimal.Decimal
	CurrentPrice   decimal.Decimal
	Active         bool
	State          CurveState
	DeployedAt     time.Time
	TotalTrades    uint64
	TotalVolumeEth decimal.Decimal
}

// RecordTrade folds an accepted trade into the curve's running totals.
// A zero supply sentinel leaves the last known supply in place.
func (b *BondingCurve) RecordTrade(t *Trade) {
	b.CurrentPrice = t.PriceAfter
	if !t.TotalSupply.IsZero() {
		b.CurrentSupply = t.TotalSupply
	}
	if t.Direction.IsBuy() {
		b.ReserveBalance = b.ReserveBalance.Add(t.EthAmount)
	} else {
		b.ReserveBalance = b.ReserveBalance.Sub(t.EthAmount)
	}
	b.TotalTrades++
	b.TotalVolumeEth = b.TotalVolumeEth.Add(t.EthAmount)
}

func (b *BondingCurve) MarketCap() decimal.Decimal {
	return b.CurrentSupply.Mul(b.CurrentPrice)
}

// CurveRecord is the JSON shape for curve:<token>.
type CurveRecord struct {
	TokenAddress   string `json:"token_address"`
	CurveAddress   string `json:"curve_address"`
	CreatorAddress string `json:"creator_address"`
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	TotalSupply    string `json:"total_supply"`
	State          string `json:"state"`
	CreatedAt      string `json:"created_at"`
}

func (b *BondingCurve) Record() CurveRecord {
	return CurveRecord{
		TokenAddress:   b.Token.Hex(),
		CurveAddress:   b.Curve.Hex(),
		CreatorAddress: b.Creator.Hex(),
		Name:           b.Name,
		Symbol:         b.Symbol,
		TotalSupply:    b.TotalSupply.String(),
		State:          b.State.String(),
		CreatedAt:      b.DeployedAt.UTC().Format(time.RFC3339),
	}
}
