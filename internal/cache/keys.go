package cache

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xpads/curvewatch/internal/domain"
)

// Key layout shared with downstream consumers. Token and address parts
// are rendered in checksum casing so readers and writers agree.
const (
	EventStreamKey     = "blockchain:events"
	BurnAllKey         = "burn_events:all"
	BurnPubSubChannel  = "burn_events"
	eventStreamMaxLen  = 10000
	tradesStreamMaxLen = 1000
)

func TradeLatestKey(token common.Address) string {
	return fmt.Sprintf("trade:latest:%s", token.Hex())
}

func MarketKey(token common.Address) string {
	return fmt.Sprintf("market:%s", token.Hex())
}

func CurveKey(token common.Address) string {
	return fmt.Sprintf("curve:%s", token.Hex())
}

func TradesStreamKey(token common.Address) string {
	return fmt.Sprintf("trades:stream:%s", token.Hex())
}

func CandlesKey(token common.Address, interval domain.Interval) string {
	return fmt.Sprintf("candles:%s:%s", token.Hex(), interval)
}

func BurnTokenKey(token common.Address) string {
	return fmt.Sprintf("burn_events:token:%s", token.Hex())
}

func BurnBurnerKey(burner common.Address) string {
	return fmt.Sprintf("burn_events:burner:%s", burner.Hex())
}

func PriceAlertsKey(token common.Address) string {
	return fmt.Sprintf("alerts:price:%s", token.Hex())
}
