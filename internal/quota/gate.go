package quota

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// State is the cached per-tenant view of the remote billing authority.
// Never durable: a restart forces a fresh remote fetch on first use.
type State struct {
	Tier             string `json:"tier"` // "free", "starter", "pro", "business"
	Blocked          bool   `json:"blocked"`
	QueriesRemaining int    `json:"queriesRemaining"`
	QueriesTotal     int    `json:"queriesTotal"`
}

// TrackResult is the authority's response to a usage report.
type TrackResult struct {
	QueriesRemaining int  `json:"queriesRemaining"`
	LimitReached     bool `json:"limitReached"`
}

// Authority is the remote billing/quota service.
type Authority interface {
	CheckQuota(ctx context.Context, tenantID string) (State, error)
	TrackUsage(ctx context.Context, tenantID, kind string, cost int, success bool) (TrackResult, error)
}

type tenantState struct {
	mu     sync.Mutex
	loaded bool
	state  State
}

// Gate decides whether interactive and scheduled executions may proceed for a
// tenant, caching the authority's answers locally. Unrelated tenants never
// block each other: locking is per tenant.
type Gate struct {
	authority Authority
	failOpen  bool

	mu      sync.Mutex
	tenants map[string]*tenantState
}

// NewGate creates a Gate. failOpen controls whether execution is permitted
// when the authority is unreachable.
func NewGate(authority Authority, failOpen bool) *Gate {
	return &Gate{
		authority: authority,
		failOpen:  failOpen,
		tenants:   make(map[string]*tenantState),
	}
}

func (g *Gate) tenant(tenantID string) *tenantState {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts, ok := g.tenants[tenantID]
	if !ok {
		ts = &tenantState{}
		g.tenants[tenantID] = ts
	}
	return ts
}

// CanProceed reports whether the tenant may execute right now.
// A cached non-blocked state answers immediately. A cached blocked state
// triggers exactly one remote re-check, so a tenant who resolved the blocking
// condition out-of-band is never permanently wedged.
func (g *Gate) CanProceed(ctx context.Context, tenantID string) bool {
	ts := g.tenant(tenantID)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.loaded {
		if !g.refresh(ctx, tenantID, ts) {
			return g.failOpen
		}
		return !ts.state.Blocked
	}
	if !ts.state.Blocked {
		return true
	}
	// Blocked in cache: the tenant may have upgraded since. Re-check once.
	if !g.refresh(ctx, tenantID, ts) {
		return g.failOpen
	}
	return !ts.state.Blocked
}

// refresh fetches fresh state from the authority. Caller holds ts.mu.
func (g *Gate) refresh(ctx context.Context, tenantID string, ts *tenantState) bool {
	state, err := g.authority.CheckQuota(ctx, tenantID)
	if err != nil {
		log.Warn().Err(err).Str("tenant", tenantID).Bool("failOpen", g.failOpen).
			Msg("quota authority unreachable on check")
		return false
	}
	ts.state = state
	ts.loaded = true
	return true
}

// TrackUsage reports consumption to the authority and folds the answer into
// the local cache. Best-effort: a transport failure is logged, never
// propagated, and never aborts the interaction being tracked.
func (g *Gate) TrackUsage(ctx context.Context, tenantID, kind string, cost int, success bool) {
	res, err := g.authority.TrackUsage(ctx, tenantID, kind, cost, success)
	if err != nil {
		log.Warn().Err(err).Str("tenant", tenantID).Str("kind", kind).
			Msg("quota usage tracking failed")
		return
	}

	ts := g.tenant(tenantID)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.loaded {
		return
	}
	ts.state.QueriesRemaining = res.QueriesRemaining
	if res.LimitReached {
		ts.state.Blocked = true
	}
}

// Invalidate drops the cached state for a tenant, forcing a remote fetch on
// the next CanProceed.
func (g *Gate) Invalidate(tenantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tenants, tenantID)
}

// Peek returns the cached state for a tenant, if any. Diagnostics only.
func (g *Gate) Peek(tenantID string) (State, bool) {
	g.mu.Lock()
	ts, ok := g.tenants[tenantID]
	g.mu.Unlock()
	if !ok {
		return State{}, false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.loaded {
		return State{}, false
	}
	return ts.state, true
}
