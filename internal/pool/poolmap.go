package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Factory builds a new FixedPool for an Endpoint the PoolMap hasn't seen
// yet. It is supplied once, at PoolMap construction, and reused for every
// endpoint: the same Connector/Config/Handler/HealthChecker template is
// applied to each per-endpoint pool unless the factory itself varies
// behavior by endpoint.
type Factory func(endpoint Endpoint) (*FixedPool, error)

// PoolMapConfig resolves spec.md §9's open question about PoolMap
// eviction: the spec intentionally leaves the sweep threshold as a
// deployment choice, so it is exposed here rather than hardcoded.
type PoolMapConfig struct {
	// SweepInterval is how often StartSweeper runs a pass. Zero
	// disables the background sweeper; callers may still invoke Sweep
	// directly.
	SweepInterval time.Duration
	// IdleThreshold is how long a pool may sit with zero acquired and
	// zero pending before a sweep evicts it.
	IdleThreshold time.Duration
}

// PoolMap lazily instantiates one FixedPool per Endpoint and exposes it
// to callers keyed by remote address (C5). A pool reachable through the
// map is always either operational or in the process of being closed;
// the map never hands a closed pool to a new caller.
type PoolMap struct {
	factory Factory
	cfg     PoolMapConfig
	log     *zap.SugaredLogger

	mu    sync.Mutex
	pools map[Endpoint]*FixedPool

	stopSweeper context.CancelFunc
}

// NewPoolMap builds a PoolMap that lazily creates pools via factory.
func NewPoolMap(factory Factory, cfg PoolMapConfig, log *zap.SugaredLogger) *PoolMap {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PoolMap{
		factory: factory,
		cfg:     cfg,
		log:     log,
		pools:   make(map[Endpoint]*FixedPool),
	}
}

// Get returns the pool for endpoint, constructing one via the factory on
// a cache miss. Concurrent misses for the same key race the factory, but
// only one winner is installed — the other's pool is closed and
// discarded without ever being observed by a second caller.
func (m *PoolMap) Get(endpoint Endpoint) (*FixedPool, error) {
	m.mu.Lock()
	if p, ok := m.pools[endpoint]; ok {
		m.mu.Unlock()
		return p, nil
	}
	m.mu.Unlock()

	p, err := m.factory(endpoint)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.pools[endpoint]; ok {
		m.mu.Unlock()
		p.Close()
		return existing, nil
	}
	m.pools[endpoint] = p
	m.mu.Unlock()

	m.log.Debugw("pool installed", "endpoint", endpoint.String())
	return p, nil
}

// Remove evicts and closes the pool for endpoint, if one exists.
func (m *PoolMap) Remove(endpoint Endpoint) {
	m.mu.Lock()
	p, ok := m.pools[endpoint]
	if ok {
		delete(m.pools, endpoint)
	}
	m.mu.Unlock()

	if ok {
		p.Close()
	}
}

// Sweep evicts every pool whose LastActiveTime is older than
// now-idleThreshold and which currently has zero acquired and zero
// pending — i.e. a pool nobody is using and nobody is waiting on.
func (m *PoolMap) Sweep(idleThreshold time.Duration) {
	now := time.Now()

	m.mu.Lock()
	var victims []Endpoint
	for ep, p := range m.pools {
		if p.AcquiredCount() == 0 && p.PendingCount() == 0 &&
			now.Sub(p.LastActiveTime()) > idleThreshold {
			victims = append(victims, ep)
		}
	}
	toClose := make([]*FixedPool, 0, len(victims))
	for _, ep := range victims {
		toClose = append(toClose, m.pools[ep])
		delete(m.pools, ep)
	}
	m.mu.Unlock()

	for i, p := range toClose {
		m.log.Infow("sweeping idle pool", "endpoint", victims[i].String())
		p.Close()
	}
}

// StartSweeper runs Sweep on PoolMapConfig.SweepInterval until ctx is
// done or Stop is called. It is a no-op if SweepInterval is zero.
func (m *PoolMap) StartSweeper(ctx context.Context) {
	if m.cfg.SweepInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.stopSweeper = cancel

	go func() {
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep(m.cfg.IdleThreshold)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels a running background sweeper started by StartSweeper.
func (m *PoolMap) Stop() {
	if m.stopSweeper != nil {
		m.stopSweeper()
	}
}

// Snapshot returns a point-in-time Stats for every currently installed
// pool, keyed by endpoint. Used by the metrics collector to populate
// per-endpoint Prometheus gauges without exposing the map's internal
// lock to callers outside this package.
func (m *PoolMap) Snapshot() map[Endpoint]Stats {
	m.mu.Lock()
	pools := make([]*FixedPool, 0, len(m.pools))
	eps := make([]Endpoint, 0, len(m.pools))
	for ep, p := range m.pools {
		eps = append(eps, ep)
		pools = append(pools, p)
	}
	m.mu.Unlock()

	out := make(map[Endpoint]Stats, len(pools))
	for i, p := range pools {
		out[eps[i]] = p.Stats()
	}
	return out
}

// CloseAll closes every pool currently in the map and empties it.
func (m *PoolMap) CloseAll() {
	m.mu.Lock()
	pools := make([]*FixedPool, 0, len(m.pools))
	for ep, p := range m.pools {
		pools = append(pools, p)
		delete(m.pools, ep)
	}
	m.mu.Unlock()

	for _, p := range pools {
		p.Close()
	}
}
