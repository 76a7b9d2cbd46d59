package pipeline

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// txDedupe is a fixed-capacity set of recently seen transaction hashes.
// Curves emit a detailed Trade event and a fee-bearing companion
// (TokensPurchased/TokensSold) in the same transaction; whichever
// decodes first wins and the companion is suppressed. Eviction is FIFO
// over a ring, which is enough for a window of recent blocks.
type txDedupe struct {
	mu   sync.Mutex
	seen map[common.Hash]struct{}
	ring []common.Hash
	pos  int
}

func newTxDedupe(capacity int) *txDedupe {
	return &txDedupe{
		seen: make(map[common.Hash]struct{}, capacity),
		ring: make([]common.Hash, capacity),
	}
}

// Seen reports whether h was already recorded, recording it if not.
func (d *txDedupe) Seen(h common.Hash) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[h]; ok {
		return true
	}
	if evicted := d.ring[d.pos]; evicted != (common.Hash{}) {
		delete(d.seen, evicted)
	}
	d.ring[d.pos] = h
	d.pos = (d.pos + 1) % len(d.ring)
	d.seen[h] = struct{}{}
	return false
}
