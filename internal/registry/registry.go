// Package registry owns the set of known bonding-curve contracts. The
// chain client consults it to decide which addresses to filter, and
// subscribes to additions so new curves get filters installed as soon
// as their deployment event is decoded.
package registry

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/0xpads/curvewatch/internal/domain"
)

// Registry is a concurrency-safe set of curves keyed by curve address,
// with a token→curve index for decode-time resolution. Listeners are
// invoked synchronously, once per actual insertion.
type Registry struct {
	mu        sync.RWMutex
	byCurve   map[common.Address]*domain.BondingCurve
	byToken   map[common.Address]common.Address
	listeners []func(curve common.Address)
}

func New() *Registry {
	return &Registry{
		byCurve: make(map[common.Address]*domain.BondingCurve),
		byToken: make(map[common.Address]common.Address),
	}
}

// Add inserts a curve record. Idempotent: re-adding an existing curve
// returns false and does not notify listeners.
func (r *Registry) Add(curve *domain.BondingCurve) bool {
	r.mu.Lock()
	if _, exists := r.byCurve[curve.Curve]; exists {
		r.mu.Unlock()
		return false
	}
	r.byCurve[curve.Curve] = curve
	r.byToken[curve.Token] = curve.Curve
	listeners := make([]func(common.Address), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	log.Info().
		Str("curve", curve.Curve.Hex()).
		Str("token", curve.Token.Hex()).
		Str("symbol", curve.Symbol).
		Msg("curve registered")

	// Outside the lock: listeners may call back into the registry.
	for _, fn := range listeners {
		fn(curve.Curve)
	}
	return true
}

func (r *Registry) Contains(curve common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byCurve[curve]
	return ok
}

// Get returns the record for a curve address.
func (r *Registry) Get(curve common.Address) (*domain.BondingCurve, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byCurve[curve]
	return c, ok
}

// CurveForToken resolves the token→curve side of the 1:1 mapping.
func (r *Registry) CurveForToken(token common.Address) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	curve, ok := r.byToken[token]
	return curve, ok
}

// Snapshot returns the current curve addresses.
func (r *Registry) Snapshot() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.byCurve))
	for addr := range r.byCurve {
		out = append(out, addr)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCurve)
}

// Subscribe registers a listener for future insertions.
func (r *Registry) Subscribe(fn func(curve common.Address)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// SetState advances a curve's lifecycle state.
func (r *Registry) SetState(curve common.Address, state domain.CurveState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byCurve[curve]
	if !ok {
		return
	}
	c.State = state
	if state == domain.CurveMigrated {
		c.Active = false
	}
}

// SetActive applies a factory CurveStatusChanged toggle by token.
func (r *Registry) SetActive(token common.Address, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	curve, ok := r.byToken[token]
	if !ok {
		return
	}
	if c, ok := r.byCurve[curve]; ok {
		c.Active = active
	}
}

// RecordTrade folds a trade into its curve's running totals, returning
// the updated record. The boolean is false for unknown curves.
func (r *Registry) RecordTrade(t *domain.Trade) (*domain.BondingCurve, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byCurve[t.Curve]
	if !ok {
		return nil, false
	}
	c.RecordTrade(t)
	return c, true
}
