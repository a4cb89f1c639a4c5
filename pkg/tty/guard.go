package tty

import "sync"

// resetGuard arms a one-shot terminal reset. The guard exists while at
// least one handle holds a reference to it; when the last reference is
// released the reset action fires exactly once. A destroyed guard is never
// revived: the next acquire builds a fresh one with a fresh obligation.
type resetGuard struct {
	reset func()
	once  sync.Once

	// refs is owned by the registry mutex.
	refs int
}

func (g *resetGuard) fire() {
	g.once.Do(g.reset)
}

// guardRegistry is the process-wide holder of the current reset guard. It
// keeps a non-owning slot that is filled lazily on acquire and cleared when
// the guard's reference count drops to zero. The check-then-create sequence
// runs under the mutex, so concurrent handle construction can never end up
// with two live guards.
type guardRegistry struct {
	mu      sync.Mutex
	current *resetGuard
	reset   func()
}

func newGuardRegistry(reset func()) *guardRegistry {
	return &guardRegistry{reset: reset}
}

// acquire returns a reference to the live guard, creating one if none
// exists. It cannot fail: no I/O happens here, only the guard's teardown
// performs an OS call.
func (r *guardRegistry) acquire() *resetGuard {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		r.current = &resetGuard{reset: r.reset}
	}
	r.current.refs++
	return r.current
}

// release drops one reference to g. On the last release the registry slot
// is cleared (so a later acquire creates a new guard, never resurrects this
// one) and the reset fires. Firing happens outside the lock: the reset
// action may block on the terminal driver and must not stall concurrent
// acquires of the next guard generation.
func (r *guardRegistry) release(g *resetGuard) {
	if g == nil {
		return
	}

	r.mu.Lock()
	g.refs--
	last := g.refs == 0
	if last && r.current == g {
		r.current = nil
	}
	r.mu.Unlock()

	if last {
		g.fire()
	}
}

// processGuards hands out guard references to every console handle in the
// process. The reset action restores the original settings of each
// descriptor whose mode was ever changed; its own failure is unobservable.
var processGuards = newGuardRegistry(func() { _ = resetTerminal() })
