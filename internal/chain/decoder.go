package chain

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/0xpads/curvewatch/internal/domain"
)

var (
	// ErrReorg marks a removed=true log. Reorg handling is out of
	// scope; such logs are dropped without state change.
	ErrReorg = errors.New("chain: log removed by reorg")
	// ErrUnknownAddress marks a log from a contract that is neither
	// the factory nor a registered curve or its token.
	ErrUnknownAddress = errors.New("chain: log from unknown address")
	// ErrUnknownTopic marks an event the listener does not consume.
	ErrUnknownTopic = errors.New("chain: unknown event topic")
)

// CurveSource is the registry view the decoder needs to route logs.
type CurveSource interface {
	Contains(curve common.Address) bool
	Get(curve common.Address) (*domain.BondingCurve, bool)
	CurveForToken(token common.Address) (common.Address, bool)
}

// BlockTimeSource resolves a block number to its header timestamp.
// The chain client fills it per poll batch.
type BlockTimeSource interface {
	BlockTime(block uint64) (uint64, bool)
}

// Decoder turns raw logs into domain events. Routing: the configured
// factory address wins, then registered curves, then registered fan
// tokens (burn events); anything else is ErrUnknownAddress.
type Decoder struct {
	factory    common.Address
	factorySet bool
	curves     CurveSource
	blocks     BlockTimeSource
}

func NewDecoder(factory *common.Address, curves CurveSource, blocks BlockTimeSource) *Decoder {
	d := &Decoder{curves: curves, blocks: blocks}
	if factory != nil {
		d.factory = *factory
		d.factorySet = true
	}
	return d
}

// blockInfo locates the log on chain, carrying the header timestamp
// when the client has resolved it.
func (d *Decoder) blockInfo(vLog types.Log) domain.BlockInfo {
	info := domain.BlockInfo{Number: vLog.BlockNumber, Hash: vLog.BlockHash}
	if d.blocks != nil {
		if ts, ok := d.blocks.BlockTime(vLog.BlockNumber); ok {
			info.Timestamp = ts
		}
	}
	return info
}

// Decode maps one raw log to a domain event. Errors are per-log: the
// caller logs and moves on.
func (d *Decoder) Decode(vLog types.Log) (domain.Event, error) {
	if vLog.Removed {
		return nil, ErrReorg
	}
	if len(vLog.Topics) == 0 {
		return nil, ErrUnknownTopic
	}
	switch {
	case d.factorySet && vLog.Address == d.factory:
		return d.decodeFactory(vLog)
	case d.curves.Contains(vLog.Address):
		return d.decodeCurve(vLog)
	default:
		if _, ok := d.curves.CurveForToken(vLog.Address); ok {
			return d.decodeToken(vLog)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, vLog.Address.Hex())
	}
}

func (d *Decoder) decodeFactory(vLog types.Log) (domain.Event, error) {
	switch vLog.Topics[0] {
	case topicCurveDeployed:
		if len(vLog.Topics) < 4 {
			return nil, fmt.Errorf("decode BondingCurveDeployed: want 4 topics, got %d", len(vLog.Topics))
		}
		var data struct {
			Name      string
			Symbol    string
			Timestamp *big.Int
		}
		if err := factoryABI.UnpackIntoInterface(&data, "BondingCurveDeployed", vLog.Data); err != nil {
			return nil, fmt.Errorf("decode BondingCurveDeployed: %w", err)
		}
		curve := &domain.BondingCurve{
			Token:      common.HexToAddress(vLog.Topics[1].Hex()),
			Curve:      common.HexToAddress(vLog.Topics[2].Hex()),
			Creator:    common.HexToAddress(vLog.Topics[3].Hex()),
			Name:       data.Name,
			Symbol:     data.Symbol,
			Active:     true,
			State:      domain.CurveActive,
			DeployedAt: time.Unix(data.Timestamp.Int64(), 0).UTC(),
		}
		return domain.CurveDeployed{Meta: domain.NewMeta(), Curve: curve}, nil

	case topicCurveStatusChanged:
		var data struct{ IsActive bool }
		if err := factoryABI.UnpackIntoInterface(&data, "CurveStatusChanged", vLog.Data); err != nil {
			return nil, fmt.Errorf("decode CurveStatusChanged: %w", err)
		}
		return domain.CurveStatusChanged{
			Meta:     domain.NewMeta(),
			Token:    common.HexToAddress(vLog.Topics[1].Hex()),
			IsActive: data.IsActive,
		}, nil

	case topicCreatorApproved, topicCreatorRevoked:
		name := "RegularTokenCreatorApproved"
		if vLog.Topics[0] == topicCreatorRevoked {
			name = "RegularTokenCreatorRevoked"
		}
		var data struct{ Timestamp *big.Int }
		if err := factoryABI.UnpackIntoInterface(&data, name, vLog.Data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		creator := common.HexToAddress(vLog.Topics[1].Hex())
		if vLog.Topics[0] == topicCreatorApproved {
			return domain.CreatorApproved{Meta: domain.NewMeta(), Creator: creator, Timestamp: data.Timestamp.Int64()}, nil
		}
		return domain.CreatorRevoked{Meta: domain.NewMeta(), Creator: creator, Timestamp: data.Timestamp.Int64()}, nil
	}
	return nil, fmt.Errorf("%w: factory topic %s", ErrUnknownTopic, vLog.Topics[0].Hex())
}

func (d *Decoder) decodeCurve(vLog types.Log) (domain.Event, error) {
	switch vLog.Topics[0] {
	case topicTrade:
		return d.decodeTrade(vLog)
	case topicTokensPurchased:
		return d.decodePurchaseOrSale(vLog, true)
	case topicTokensSold:
		return d.decodePurchaseOrSale(vLog, false)

	case topicMilestoneReached:
		if len(vLog.Topics) < 2 {
			return nil, fmt.Errorf("decode MilestoneReached: missing level topic")
		}
		var data struct {
			ReserveETH   *big.Int
			VestedTokens *big.Int
			Timestamp    *big.Int
		}
		if err := curveABI.UnpackIntoInterface(&data, "MilestoneReached", vLog.Data); err != nil {
			return nil, fmt.Errorf("decode MilestoneReached: %w", err)
		}
		return domain.MilestoneReached{
			Meta:       domain.NewMeta(),
			Curve:      vLog.Address,
			Level:      new(big.Int).SetBytes(vLog.Topics[1].Bytes()).Uint64(),
			ReserveEth: domain.FromWei(data.ReserveETH),
			Timestamp:  data.Timestamp.Int64(),
		}, nil

	case topicReadyForDEX:
		var data struct {
			McapOrReserves *big.Int
			Timestamp      *big.Int
		}
		if err := curveABI.UnpackIntoInterface(&data, "ReadyForDEX", vLog.Data); err != nil {
			return nil, fmt.Errorf("decode ReadyForDEX: %w", err)
		}
		return domain.ReadyForDEX{
			Meta:           domain.NewMeta(),
			Curve:          vLog.Address,
			McapOrReserves: domain.FromWei(data.McapOrReserves),
			Timestamp:      data.Timestamp.Int64(),
		}, nil

	case topicMigrationStarted:
		var data struct {
			ReserveETH  *big.Int
			TokenAmount *big.Int
			TargetDEX   common.Address
			Timestamp   *big.Int
		}
		if err := curveABI.UnpackIntoInterface(&data, "MigrationStarted", vLog.Data); err != nil {
			return nil, fmt.Errorf("decode MigrationStarted: %w", err)
		}
		return domain.MigrationStarted{
			Meta:        domain.NewMeta(),
			Curve:       vLog.Address,
			ReserveEth:  domain.FromWei(data.ReserveETH),
			TokenAmount: domain.FromWei(data.TokenAmount),
			TargetDEX:   data.TargetDEX,
			Timestamp:   data.Timestamp.Int64(),
		}, nil

	case topicMigrationCompleted:
		if len(vLog.Topics) < 2 {
			return nil, fmt.Errorf("decode MigrationCompleted: missing pool topic")
		}
		var data struct {
			TokenId   *big.Int
			EthUsed   *big.Int
			TokenUsed *big.Int
			Timestamp *big.Int
		}
		if err := curveABI.UnpackIntoInterface(&data, "MigrationCompleted", vLog.Data); err != nil {
			return nil, fmt.Errorf("decode MigrationCompleted: %w", err)
		}
		return domain.MigrationCompleted{
			Meta:      domain.NewMeta(),
			Curve:     vLog.Address,
			Pool:      common.HexToAddress(vLog.Topics[1].Hex()),
			EthUsed:   domain.FromWei(data.EthUsed),
			TokenUsed: domain.FromWei(data.TokenUsed),
			Timestamp: data.Timestamp.Int64(),
		}, nil
	}
	return nil, fmt.Errorf("%w: curve topic %s", ErrUnknownTopic, vLog.Topics[0].Hex())
}

func (d *Decoder) decodeTrade(vLog types.Log) (domain.Event, error) {
	if len(vLog.Topics) < 3 {
		return nil, fmt.Errorf("decode Trade: want 3 topics, got %d", len(vLog.Topics))
	}
	var data struct {
		EthInOrOut  *big.Int
		TokenDelta  *big.Int
		PriceBefore *big.Int
		PriceAfter  *big.Int
		SupplyAfter *big.Int
		Timestamp   *big.Int
	}
	if err := curveABI.UnpackIntoInterface(&data, "Trade", vLog.Data); err != nil {
		return nil, fmt.Errorf("decode Trade: %w", err)
	}
	token, err := d.tokenFor(vLog.Address)
	if err != nil {
		return nil, err
	}
	direction := domain.Sell
	if new(big.Int).SetBytes(vLog.Topics[2].Bytes()).Sign() != 0 {
		direction = domain.Buy
	}
	trade := &domain.Trade{
		Token:       token,
		Curve:       vLog.Address,
		User:        common.HexToAddress(vLog.Topics[1].Hex()),
		Direction:   direction,
		TokenAmount: domain.FromWei(data.TokenDelta),
		EthAmount:   domain.FromWei(data.EthInOrOut),
		PriceBefore: domain.FromWei(data.PriceBefore),
		PriceAfter:  domain.FromWei(data.PriceAfter),
		TotalSupply: domain.FromWei(data.SupplyAfter),
		Block:       d.blockInfo(vLog),
		TxHash:      vLog.TxHash,
		LogIndex:    uint32(vLog.Index),
		Timestamp:   time.Unix(data.Timestamp.Int64(), 0).UTC(),
	}
	return domain.TradeExecuted{Meta: domain.NewMeta(), Trade: trade}, nil
}

// decodePurchaseOrSale canonicalizes the fee-bearing event variants to
// a Trade. They carry neither priceBefore nor supplyAfter, so those
// stay zero sentinels and downstream treats them accordingly. They
// carry no timestamp either; the block's header time stands in so that
// bucket assignment follows chain time, not processing time.
func (d *Decoder) decodePurchaseOrSale(vLog types.Log, isBuy bool) (domain.Event, error) {
	if len(vLog.Topics) < 2 {
		return nil, fmt.Errorf("decode purchase/sale: missing user topic")
	}
	token, err := d.tokenFor(vLog.Address)
	if err != nil {
		return nil, err
	}

	var tokenAmount, ethAmount, newPrice *big.Int
	if isBuy {
		var data struct {
			TokensReceived *big.Int
			EthSpent       *big.Int
			PlatformFee    *big.Int
			CreatorFee     *big.Int
			NewPrice       *big.Int
		}
		if err := curveABI.UnpackIntoInterface(&data, "TokensPurchased", vLog.Data); err != nil {
			return nil, fmt.Errorf("decode TokensPurchased: %w", err)
		}
		tokenAmount, ethAmount, newPrice = data.TokensReceived, data.EthSpent, data.NewPrice
	} else {
		var data struct {
			TokenAmount *big.Int
			EthReceived *big.Int
			PlatformFee *big.Int
			CreatorFee  *big.Int
			NewPrice    *big.Int
		}
		if err := curveABI.UnpackIntoInterface(&data, "TokensSold", vLog.Data); err != nil {
			return nil, fmt.Errorf("decode TokensSold: %w", err)
		}
		tokenAmount, ethAmount, newPrice = data.TokenAmount, data.EthReceived, data.NewPrice
	}

	direction := domain.Sell
	if isBuy {
		direction = domain.Buy
	}
	block := d.blockInfo(vLog)
	ts := time.Now().UTC()
	if block.Timestamp != 0 {
		ts = time.Unix(int64(block.Timestamp), 0).UTC()
	}
	trade := &domain.Trade{
		Token:       token,
		Curve:       vLog.Address,
		User:        common.HexToAddress(vLog.Topics[1].Hex()),
		Direction:   direction,
		TokenAmount: domain.FromWei(tokenAmount),
		EthAmount:   domain.FromWei(ethAmount),
		PriceAfter:  domain.FromWei(newPrice),
		Block:       block,
		TxHash:      vLog.TxHash,
		LogIndex:    uint32(vLog.Index),
		Timestamp:   ts,
	}
	return domain.TradeExecuted{Meta: domain.NewMeta(), Trade: trade}, nil
}

func (d *Decoder) decodeToken(vLog types.Log) (domain.Event, error) {
	if vLog.Topics[0] != topicCommunityBurn {
		return nil, fmt.Errorf("%w: token topic %s", ErrUnknownTopic, vLog.Topics[0].Hex())
	}
	if len(vLog.Topics) < 2 {
		return nil, fmt.Errorf("decode CommunityBurn: missing creator topic")
	}
	var data struct {
		Amount      *big.Int
		TotalBurned *big.Int
		Reason      string
		Timestamp   *big.Int
	}
	if err := fanTokenABI.UnpackIntoInterface(&data, "CommunityBurn", vLog.Data); err != nil {
		return nil, fmt.Errorf("decode CommunityBurn: %w", err)
	}
	return domain.BurnRecorded{
		Meta:        domain.NewMeta(),
		Token:       vLog.Address,
		Burner:      common.HexToAddress(vLog.Topics[1].Hex()),
		Amount:      domain.FromWei(data.Amount),
		TotalBurned: domain.FromWei(data.TotalBurned),
		Reason:      data.Reason,
		Timestamp:   data.Timestamp.Int64(),
		TxHash:      vLog.TxHash,
	}, nil
}

func (d *Decoder) tokenFor(curve common.Address) (common.Address, error) {
	c, ok := d.curves.Get(curve)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: curve %s missing from registry", ErrUnknownAddress, curve.Hex())
	}
	return c.Token, nil
}
