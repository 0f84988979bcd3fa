package sheep

import "sync"

// base holds the state shared by BareSheep and DockerSheep: the current
// lifecycle State and currently-loaded model. Embedding it keeps the two
// variants from duplicating this bookkeeping (and its locking).
type base struct {
	mu        sync.Mutex
	cfg       Config
	state     State
	loaded    Model
	hasLoaded bool
}

func newBase(cfg Config) base {
	return base{cfg: cfg, state: StateIdle}
}

func (b *base) ID() string     { return b.cfg.ID }
func (b *base) Config() Config { return b.cfg }

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *base) Loaded() (Model, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded, b.hasLoaded
}

func (b *base) setLoaded(m Model) {
	b.mu.Lock()
	b.loaded = m
	b.hasLoaded = true
	b.mu.Unlock()
}

func (b *base) clearLoaded() {
	b.mu.Lock()
	b.loaded = Model{}
	b.hasLoaded = false
	b.mu.Unlock()
}

// Running is true iff the socket has completed handshake (Ready) or the
// sheep is actively processing a job (Busy) — spec.md §3's invariant.
func (b *base) Running() bool {
	s := b.State()
	return s == StateReady || s == StateBusy
}

func (b *base) MarkBusy() {
	b.mu.Lock()
	if b.state == StateReady {
		b.state = StateBusy
	}
	b.mu.Unlock()
}

func (b *base) MarkReady() {
	b.mu.Lock()
	if b.state == StateBusy {
		b.state = StateReady
	}
	b.mu.Unlock()
}
