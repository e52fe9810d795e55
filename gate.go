package sage

import "sync"

// gate counts calls into a module and refuses new ones once closed.
type gate struct {
	mu     sync.Mutex
	closed bool
	active int
	idle   chan struct{}
}

func newGate() *gate {
	g := &gate{idle: make(chan struct{})}
	close(g.idle)
	return g
}

// enter reports whether the caller may invoke the module. Every successful
// enter must be paired with leave.
func (g *gate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	if g.active == 0 {
		g.idle = make(chan struct{})
	}
	g.active++
	return true
}

func (g *gate) leave() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.active--
	if g.active == 0 {
		close(g.idle)
	}
}

// close blocks further entries and returns a channel that is closed once the
// calls already inside have left.
func (g *gate) close() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	return g.idle
}
