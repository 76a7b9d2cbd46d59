package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// MarketData is the rolling 24h summary for one token.
type MarketData struct {
	Token             common.Address
	CurrentPrice      decimal.Decimal
	PriceChange24h    decimal.Decimal
	PriceChangePct24h decimal.Decimal
	Volume24h         decimal.Decimal
	VolumeEth24h      decimal.Decimal
	Trades24h         uint32
	MarketCap         decimal.Decimal
	LastUpdated       time.Time
}

// MarketRecord is the JSON shape for market:<token>.
type MarketRecord struct {
	TokenAddress        string `json:"token_address"`
	CurrentPrice        string `json:"current_price"`
	PriceChange24h      string `json:"price_change_24h"`
	PriceChangePct24h   string `json:"price_change_percent_24h"`
	Volume24h           string `json:"volume_24h"`
	VolumeEth24h        string `json:"volume_eth_24h"`
	Trades24h           uint32 `json:"trades_24h"`
	MarketCap           string `json:"market_cap"`
	LastUpdated         string `json:"last_updated"`
}

func (m *MarketData) Record() MarketRecord {
	return MarketRecord{
		TokenAddress:      m.Token.Hex(),
		CurrentPrice:      m.CurrentPrice.String(),
		PriceChange24h:    m.PriceChange24h.String(),
		PriceChangePct24h: m.PriceChangePct24h.String(),
		Volume24h:         m.Volume24h.String(),
		VolumeEth24h:      m.VolumeEth24h.String(),
		Trades24h:         m.Trades24h,
		MarketCap:         m.MarketCap.String(),
		LastUpdated:       m.LastUpdated.UTC().Format(time.RFC3339),
	}
}
