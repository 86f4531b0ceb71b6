package attempt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/bandcoach/internal/model"
)

// DefaultIdleTTL is how long an unused machine stays in the registry.
const DefaultIdleTTL = 30 * time.Minute

type key struct {
	profileID string
	mode      model.Mode
}

// Registry holds one machine per (profile, mode).
type Registry struct {
	deps Deps
	opts Options

	now  func() time.Time

	mu       sync.Mutex
	machines map[key]*Machine
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps, opts Options) *Registry {
	return &Registry{deps: deps, opts: opts, now: time.Now, machines: make(map[key]*Machine)}
}

// Get returns the machine for a profile and mode, creating it on first use.
// A new exam machine picks up a countdown persisted as running.
func (r *Registry) Get(profileID string, mode model.Mode) *Machine {
	r.mu.Lock()
	k := key{profileID, mode}
	m, ok := r.machines[k]
	if !ok {
		m = NewMachine(profileID, mode, r.deps, r.opts)
		r.machines[k] = m
	}
	m.touch(r.now())
	r.mu.Unlock()
	if !ok {
		m.resume()
	}
	return m
}

// Len returns the number of live machines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}

// Prune drops machines unused for ttl that have nothing in flight: no
// submission and no running countdown. Drafts and history live in the store,
// so a dropped machine is rebuilt on the next request. It returns the number
// of machines dropped.
func (r *Registry) Prune(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, m := range r.machines {
		if m.idleSince(cutoff) {
			m.Close()
			delete(r.machines, k)
			n++
		}
	}
	return n
}

// Run prunes idle machines every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, ttl time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := r.Prune(ttl); n > 0 {
				slog.Debug("pruned idle attempt machines", "count", n, "live", r.Len())
			}
		}
	}
}

// Close stops every countdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.machines {
		m.Close()
	}
}
