package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is the discriminated union dispatched through the pipeline.
// Concrete variants carry their payload as typed fields; the Type tag
// is what downstream consumers see in the durable stream, and the
// envelope id travels with the event into stream entries and failure
// logs.
type Event interface {
	Type() string
	EventID() string
}

// Meta is the envelope every event carries.
type Meta struct {
	ID         string
	OccurredAt time.Time
}

func (m Meta) EventID() string { return m.ID }

func NewMeta() Meta {
	return Meta{ID: uuid.NewString(), OccurredAt: time.Now().UTC()}
}

type TradeExecuted struct {
	Meta
	Trade *Trade
}

func (TradeExecuted) Type() string { return "TradeExecuted" }

type CandleUpdated struct {
	Meta
	Candle   *Candle
	Previous *Candle
}

func (CandleUpdated) Type() string { return "CandleUpdated" }

type NewCandleCreated struct {
	Meta
	Candle *Candle
}

func (NewCandleCreated) Type() string { return "NewCandleCreated" }

type MarketDataUpdated struct {
	Meta
	Market        *MarketData
	PreviousPrice *decimal.Decimal
}

func (MarketDataUpdated) Type() string { return "MarketDataUpdated" }

type CurveDeployed struct {
	Meta
	Curve *BondingCurve
}

func (CurveDeployed) Type() string { return "BondingCurveDeployed" }

type CurveStatusChanged struct {
	Meta
	Token    common.Address
	IsActive bool
}

func (CurveStatusChanged) Type() string { return "CurveStatusChanged" }

type LargeTrade struct {
	Meta
	Trade        *Trade
	ThresholdEth decimal.Decimal
}

func (LargeTrade) Type() string { return "LargeTrade" }

type PriceAlert struct {
	Meta
	Token          common.Address
	CurrentPrice   decimal.Decimal
	ThresholdPrice decimal.Decimal
	AlertType      string
	UserID         string
}

func (PriceAlert) Type() string { return "PriceAlert" }

type MilestoneReached struct {
	Meta
	Curve      common.Address
	Level      uint64
	ReserveEth decimal.Decimal
	Timestamp  int64
}

func (MilestoneReached) Type() string { return "MilestoneReached" }

type VolumeSpike struct {
	Meta
	Token           common.Address
	CurrentVolume   decimal.Decimal
	AverageVolume   decimal.Decimal
	SpikeMultiplier float64
	WindowMinutes   int
}

func (VolumeSpike) Type() string { return "VolumeSpike" }

type CreatorApproved struct {
	Meta
	Creator   common.Address
	Timestamp int64
}

func (CreatorApproved) Type() string { return "RegularCreatorApproved" }

type CreatorRevoked struct {
	Meta
	Creator   common.Address
	Timestamp int64
}

func (CreatorRevoked) Type() string { return "RegularCreatorRevoked" }

type BurnRecorded struct {
	Meta
	Token       common.Address
	Burner      common.Address
	Amount      decimal.Decimal
	TotalBurned decimal.Decimal
	Reason      string
	Timestamp   int64
	TxHash      common.Hash
}

func (BurnRecorded) Type() string { return "CommunityBurn" }

type ReadyForDEX struct {
	Meta
	Curve          common.Address
	McapOrReserves decimal.Decimal
	Timestamp      int64
}

func (ReadyForDEX) Type() string { return "ReadyForDEX" }

type MigrationStarted struct {
	Meta
	Curve       common.Address
	ReserveEth  decimal.Decimal
	TokenAmount decimal.Decimal
	TargetDEX   common.Address
	Timestamp   int64
}

func (MigrationStarted) Type() string { return "MigrationStarted" }

type MigrationCompleted struct {
	Meta
	Curve     common.Address
	Pool      common.Address
	EthUsed   decimal.Decimal
	TokenUsed decimal.Decimal
	Timestamp int64
}

func (MigrationCompleted) Type() string { return "MigrationCompleted" }
