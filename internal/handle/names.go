package handle

import "sort"

// BindName associates name with h, provided name is not already bound. The
// name table is kept sorted so FindName can binary-search it.
func (r *Registry) BindName(h Handle, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := sort.Search(len(r.names), func(i int) bool { return r.names[i].name >= name })
	if i < len(r.names) && r.names[i].name == name {
		return false
	}

	r.names = append(r.names, nameEntry{})
	copy(r.names[i+1:], r.names[i:])
	r.names[i] = nameEntry{name: name, handle: h}
	return true
}

// FindName returns the handle bound to name, or 0 if there is none.
func (r *Registry) FindName(name string) Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := sort.Search(len(r.names), func(i int) bool { return r.names[i].name >= name })
	if i < len(r.names) && r.names[i].name == name {
		return r.names[i].handle
	}
	return 0
}

// Names returns a snapshot of the name table in lexicographic order, for
// diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	for i, e := range r.names {
		out[i] = e.name
	}
	return out
}

// compactNamesLocked drops every name bound to h. Must be called with mu
// held for writing.
func (r *Registry) compactNamesLocked(h Handle) {
	kept := r.names[:0]
	for _, e := range r.names {
		if e.handle != h {
			kept = append(kept, e)
		}
	}
	r.names = kept
}
