package handle

import "sync"

const initialSlots = 4

// Entry is whatever the registry stores at a handle: a service context in
// practice (see internal/actor.Context), kept as an interface here so the
// registry does not need to import the actor package. Retain/Release
// implement the grab/release reference-counting contract: Release reports
// whether the count reached zero. Retire discards that result; nothing
// finalizes an entry explicitly.
type Entry interface {
	Retain()
	Release() (refsZero bool)
}

type slot struct {
	handle Handle
	entry  Entry
}

// Registry is the address table: an open-addressed, power-of-two-sized
// slot array of services, plus a lexicographically sorted name table for
// bind_name/find_name. All operations are O(1) amortized except for the
// occasional doubling rehash and the O(log n) binary searches over names.
type Registry struct {
	mu        sync.RWMutex
	harbor    uint8
	slots     []slot
	nextIndex uint32
	names     []nameEntry
}

type nameEntry struct {
	name   string
	handle Handle
}

// NewRegistry returns an empty registry that tags every allocated handle
// with harbor.
func NewRegistry(harbor uint8) *Registry {
	return &Registry{
		harbor:    harbor,
		slots:     make([]slot, initialSlots),
		nextIndex: 1,
	}
}

// Register allocates a fresh handle for e and stores it. Candidate local
// ids are drawn from a rolling counter that skips 0 and wraps at the
// 24-bit boundary; the table doubles (and rehashes) if no empty slot is
// found among len(slots) consecutive candidates, which — since
// consecutive integers modulo a power of two visit every residue exactly
// once per period — exhausts every slot before growing.
func (r *Registry) Register(e Entry) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		attempts := len(r.slots)
		mask := uint32(len(r.slots) - 1)
		for i := 0; i < attempts; i++ {
			id := r.advance()
			idx := id & mask
			if r.slots[idx].entry == nil {
				r.slots[idx] = slot{handle: New(r.harbor, id), entry: e}
				return r.slots[idx].handle
			}
		}
		r.grow()
	}
}

// advance returns the next candidate local id and rolls the counter
// forward, skipping 0 and wrapping at 24 bits. Must be called with mu
// held.
func (r *Registry) advance() uint32 {
	id := r.nextIndex
	r.nextIndex++
	if r.nextIndex > LocalMask {
		r.nextIndex = 1
	}
	return id
}

// grow doubles the slot array and rehashes every occupied slot. Must be
// called with mu held. Each occupant maps to a distinct new slot: the
// new mask has one more bit than the old, so entries that previously
// collided on the low bits now separate on that bit.
func (r *Registry) grow() {
	next := make([]slot, len(r.slots)*2)
	mask := uint32(len(next) - 1)
	for _, s := range r.slots {
		if s.entry == nil {
			continue
		}
		next[s.handle.Local()&mask] = s
	}
	r.slots = next
}

// Retire removes h's occupant, if h is the current occupant of its slot,
// drops h's name bindings, and releases its reference count. It returns
// whether a removal actually occurred.
func (r *Registry) Retire(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	mask := uint32(len(r.slots) - 1)
	idx := h.Local() & mask
	s := r.slots[idx]
	if s.entry == nil || s.handle != h {
		return false
	}

	r.slots[idx] = slot{}
	r.compactNamesLocked(h)
	s.entry.Release()
	return true
}

// RetireAll retires every currently registered handle. Used for an
// orderly full shutdown.
func (r *Registry) RetireAll() {
	for {
		r.mu.RLock()
		var h Handle
		found := false
		for _, s := range r.slots {
			if s.entry != nil {
				h, found = s.handle, true
				break
			}
		}
		r.mu.RUnlock()
		if !found {
			return
		}
		r.Retire(h)
	}
}

// Grab looks up h and, if it is still live, increments its reference
// count and returns the entry. The slot-clear in Retire and the
// reference-count decrement happen under the same write lock, so a
// concurrent Grab can never observe a half-retired entry.
func (r *Registry) Grab(h Handle) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mask := uint32(len(r.slots) - 1)
	idx := h.Local() & mask
	s := r.slots[idx]
	if s.entry == nil || s.handle != h {
		return nil, false
	}
	s.entry.Retain()
	return s.entry, true
}

// Peek looks up h like Grab but without touching the reference count. It
// exists for the dispatcher, which already holds exclusive access to a
// service's own mailbox and only needs its Context pointer, not a borrow.
func (r *Registry) Peek(h Handle) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mask := uint32(len(r.slots) - 1)
	idx := h.Local() & mask
	s := r.slots[idx]
	if s.entry == nil || s.handle != h {
		return nil, false
	}
	return s.entry, true
}

// Count returns the number of currently registered handles, for
// diagnostics (see internal/admin).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.slots {
		if s.entry != nil {
			n++
		}
	}
	return n
}
