package pipeline

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestDedupeFirstSightingWins(t *testing.T) {
	d := newTxDedupe(8)
	h := common.HexToHash("0x01")
	assert.False(t, d.Seen(h))
	assert.True(t, d.Seen(h))
	assert.True(t, d.Seen(h))
}

func TestDedupeEvictsOldestWhenFull(t *testing.T) {
	d := newTxDedupe(2)
	a := common.HexToHash("0x0a")
	b := common.HexToHash("0x0b")
	c := common.HexToHash("0x0c")

	assert.False(t, d.Seen(a))
	assert.False(t, d.Seen(b))
	// Inserting c evicts a, the oldest entry.
	assert.False(t, d.Seen(c))
	assert.False(t, d.Seen(a))
	assert.True(t, d.Seen(c))
}
