package gateway

import (
	"fmt"
	"sync"

	"github.com/mcdev12/rollcall/go/internal/roster"
	"github.com/mcdev12/rollcall/go/internal/wheel"
)

// WheelRegistry keeps one wheel per team, its candidates being the team's
// present members
type WheelRegistry struct {
	store      *roster.Store
	opts       []wheel.Option
	onResolved func(wheel.Resolution)

	mu      sync.Mutex
	engines map[string]*wheel.Engine
}

// NewWheelRegistry creates an empty registry. Landed spins are recorded in store.
func NewWheelRegistry(store *roster.Store, onResolved func(wheel.Resolution), opts ...wheel.Option) *WheelRegistry {
	return &WheelRegistry{
		store:      store,
		opts:       opts,
		onResolved: onResolved,
		engines:    make(map[string]*wheel.Engine),
	}
}

// Get returns the team's wheel, creating it on first use
func (r *WheelRegistry) Get(team string) (*wheel.Engine, error) {
	t, ok := r.store.Team(team)
	if !ok {
		return nil, fmt.Errorf("%q: %w", team, roster.ErrTeamNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	engine, ok := r.engines[team]
	if !ok {
		engine = wheel.NewEngine(team, r.store, r.opts...)
		if r.onResolved != nil {
			engine.OnResolved(r.onResolved)
		}
		r.engines[team] = engine
	}
	engine.SetCandidates(roster.PresentNames(t))
	return engine, nil
}

// Refresh updates every wheel's candidates from the store and drops wheels of removed teams
func (r *WheelRegistry) Refresh() {
	teams := r.store.Teams()

	r.mu.Lock()
	defer r.mu.Unlock()

	for name, engine := range r.engines {
		team, ok := teams[name]
		if !ok {
			engine.Close()
			delete(r.engines, name)
			continue
		}
		engine.SetCandidates(roster.PresentNames(team))
	}
}

// Len returns the number of live wheels
func (r *WheelRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Close stops every wheel
func (r *WheelRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, engine := range r.engines {
		engine.Close()
		delete(r.engines, name)
	}
}
