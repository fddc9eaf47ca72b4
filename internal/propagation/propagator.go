package propagation

import (
	"log/slog"
	"sync"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/komasaru/iss-sgp4-json/internal/tle"
)

// cacheKey identifies an element set.
type cacheKey struct {
	line1, line2 string
}

// cached is an initialized propagator or the error its initialization
// produced, so a bad element set is only reported once per run.
type cached struct {
	prop *SGP4Propagator
	err  error
}

// Propagator hands out initialized SGP4 propagators, building each element
// set's model once. Safe for concurrent use.
type Propagator struct {
	gravity satellite.Gravity
	logger  *slog.Logger

	mu    sync.Mutex
	props map[cacheKey]cached
}

// NewPropagator creates a Propagator using the given gravity model.
func NewPropagator(gravity satellite.Gravity, logger *slog.Logger) *Propagator {
	return &Propagator{
		gravity: gravity,
		logger:  logger,
		props:   make(map[cacheKey]cached),
	}
}

// For returns the propagator for entry, initializing it on first use.
func (p *Propagator) For(entry tle.Entry) (*SGP4Propagator, error) {
	key := cacheKey{entry.Line1, entry.Line2}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.props[key]; ok {
		return c.prop, c.err
	}

	sp, err := NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID, p.gravity)
	if err != nil {
		p.logger.Warn("sgp4 init failed", "norad_id", entry.NORADID, "epoch", entry.Epoch, "error", err)
	} else {
		p.logger.Debug("sgp4 propagator initialized", "norad_id", entry.NORADID, "epoch", entry.Epoch)
	}
	p.props[key] = cached{prop: sp, err: err}
	return sp, err
}

// Len returns the number of cached element sets.
func (p *Propagator) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.props)
}
