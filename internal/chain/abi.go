// Package chain talks to the node: it owns the WebSocket client, the
// log filters and the decoding of raw logs into domain events.
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABI fragments for the three contract shapes the listener consumes.
// Field order is load-bearing; topic hashes are derived from these
// definitions, never hardcoded.

const factoryABIJSON = `[
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"tokenAddress","type":"address"},
    {"indexed":true,"name":"curveAddress","type":"address"},
    {"indexed":true,"name":"creator","type":"address"},
    {"indexed":false,"name":"name","type":"string"},
    {"indexed":false,"name":"symbol","type":"string"},
    {"indexed":false,"name":"timestamp","type":"uint256"}],
   "name":"BondingCurveDeployed","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"tokenAddress","type":"address"},
    {"indexed":false,"name":"isActive","type":"bool"}],
   "name":"CurveStatusChanged","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"creator","type":"address"},
    {"indexed":false,"name":"timestamp","type":"uint256"}],
   "name":"RegularTokenCreatorApproved","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"creator","type":"address"},
    {"indexed":false,"name":"timestamp","type":"uint256"}],
   "name":"RegularTokenCreatorRevoked","type":"event"},
  {"inputs":[],"name":"getDeployedCurves","outputs":[
    {"components":[
      {"name":"tokenAddress","type":"address"},
      {"name":"creator","type":"address"},
      {"name":"curveAddress","type":"address"},
      {"name":"name","type":"string"},
      {"name":"symbol","type":"string"},
      {"name":"deployedAt","type":"uint256"},
      {"name":"isActive","type":"bool"},
      {"name":"isApproved","type":"bool"}],
     "name":"","type":"tuple[]"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getAllTokens","outputs":[
    {"components":[
      {"name":"tokenAddress","type":"address"},
      {"name":"creator","type":"address"},
      {"name":"curveAddress","type":"address"},
      {"name":"name","type":"string"},
      {"name":"symbol","type":"string"},
      {"name":"deployedAt","type":"uint256"},
      {"name":"isActive","type":"bool"},
      {"name":"isApproved","type":"bool"}],
     "name":"","type":"tuple[]"}],
   "stateMutability":"view","type":"function"}
]`

const curveABIJSON = `[
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"user","type":"address"},
    {"indexed":true,"name":"isBuy","type":"bool"},
    {"indexed":false,"name":"ethInOrOut","type":"uint256"},
    {"indexed":false,"name":"tokenDelta","type":"uint256"},
    {"indexed":false,"name":"priceBefore","type":"uint256"},
    {"indexed":false,"name":"priceAfter","type":"uint256"},
    {"indexed":false,"name":"supplyAfter","type":"uint256"},
    {"indexed":false,"name":"timestamp","type":"uint256"}],
   "name":"Trade","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"buyer","type":"address"},
    {"indexed":false,"name":"tokensReceived","type":"uint256"},
    {"indexed":false,"name":"ethSpent","type":"uint256"},
    {"indexed":false,"name":"platformFee","type":"uint256"},
    {"indexed":false,"name":"creatorFee","type":"uint256"},
    {"indexed":false,"name":"newPrice","type":"uint256"}],
   "name":"TokensPurchased","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"seller","type":"address"},
    {"indexed":false,"name":"tokenAmount","type":"uint256"},
    {"indexed":false,"name":"ethReceived","type":"uint256"},
    {"indexed":false,"name":"platformFee","type":"uint256"},
    {"indexed":false,"name":"creatorFee","type":"uint256"},
    {"indexed":false,"name":"newPrice","type":"uint256"}],
   "name":"TokensSold","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"level","type":"uint256"},
    {"indexed":false,"name":"reserveETH","type":"uint256"},
    {"indexed":false,"name":"vestedTokens","type":"uint256"},
    {"indexed":false,"name":"timestamp","type":"uint256"}],
   "name":"MilestoneReached","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":false,"name":"mcapOrReserves","type":"uint256"},
    {"indexed":false,"name":"timestamp","type":"uint256"}],
   "name":"ReadyForDEX","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":false,"name":"reserveETH","type":"uint256"},
    {"indexed":false,"name":"tokenAmount","type":"uint256"},
    {"indexed":false,"name":"targetDEX","type":"address"},
    {"indexed":false,"name":"timestamp","type":"uint256"}],
   "name":"MigrationStarted","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"pool","type":"address"},
    {"indexed":false,"name":"tokenId","type":"uint256"},
    {"indexed":false,"name":"ethUsed","type":"uint256"},
    {"indexed":false,"name":"tokenUsed","type":"uint256"},
    {"indexed":false,"name":"timestamp","type":"uint256"}],
   "name":"MigrationCompleted","type":"event"},
  {"inputs":[],"name":"token","outputs":[{"name":"","type":"address"}],
   "stateMutability":"view","type":"function"}
]`

const fanTokenABIJSON = `[
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"creator","type":"address"},
    {"indexed":false,"name":"amount","type":"uint256"},
    {"indexed":false,"name":"totalBurned","type":"uint256"},
    {"indexed":false,"name":"reason","type":"string"},
    {"indexed":false,"name":"timestamp","type":"uint256"}],
   "name":"CommunityBurn","type":"event"}
]`

var (
	factoryABI  abi.ABI
	curveABI    abi.ABI
	fanTokenABI abi.ABI

	topicCurveDeployed      common.Hash
	topicCurveStatusChanged common.Hash
	topicCreatorApproved    common.Hash
	topicCreatorRevoked     common.Hash
	topicTrade              common.Hash
	topicTokensPurchased    common.Hash
	topicTokensSold         common.Hash
	topicMilestoneReached   common.Hash
	topicReadyForDEX        common.Hash
	topicMigrationStarted   common.Hash
	topicMigrationCompleted common.Hash
	topicCommunityBurn      common.Hash
)

func init() {
	var err error
	if factoryABI, err = abi.JSON(strings.NewReader(factoryABIJSON)); err != nil {
		panic("chain: factory abi: " + err.Error())
	}
	if curveABI, err = abi.JSON(strings.NewReader(curveABIJSON)); err != nil {
		panic("chain: curve abi: " + err.Error())
	}
	if fanTokenABI, err = abi.JSON(strings.NewReader(fanTokenABIJSON)); err != nil {
		panic("chain: fan token abi: " + err.Error())
	}

	topicCurveDeployed = factoryABI.Events["BondingCurveDeployed"].ID
	topicCurveStatusChanged = factoryABI.Events["CurveStatusChanged"].ID
	topicCreatorApproved = factoryABI.Events["RegularTokenCreatorApproved"].ID
	topicCreatorRevoked = factoryABI.Events["RegularTokenCreatorRevoked"].ID
	topicTrade = curveABI.Events["Trade"].ID
	topicTokensPurchased = curveABI.Events["TokensPurchased"].ID
	topicTokensSold = curveABI.Events["TokensSold"].ID
	topicMilestoneReached = curveABI.Events["MilestoneReached"].ID
	topicReadyForDEX = curveABI.Events["ReadyForDEX"].ID
	topicMigrationStarted = curveABI.Events["MigrationStarted"].ID
	topicMigrationCompleted = curveABI.Events["MigrationCompleted"].ID
	topicCommunityBurn = fanTokenABI.Events["CommunityBurn"].ID
}

// watchedTopics is the OR-set installed in the shared log filter.
func watchedTopics() []common.Hash {
	return []common.Hash{
		topicCurveDeployed,
		topicCurveStatusChanged,
		topicCreatorApproved,
		topicCreatorRevoked,
		topicTrade,
		topicTokensPurchased,
		topicTokensSold,
		topicMilestoneReached,
		topicReadyForDEX,
		topicMigrationStarted,
		topicMigrationCompleted,
		topicCommunityBurn,
	}
}
