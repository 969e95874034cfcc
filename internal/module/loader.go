package module

import (
	"fmt"
	"plugin"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PluginSymbol is the exported symbol name a .so built against this
// module's ABI must expose, of type Module.
const PluginSymbol = "Module"

// Loader resolves modules by name against an in-process registry, caching
// resolved Modules in a bounded LRU so a hot-path service restart never
// pays more than one registry lookup. This is the in-process stand-in for
// "dlopen is expensive, cache the handle" in the original module table.
//
// Names that aren't pre-registered fall back to plugin.Open against
// searchPath, with "?" substituted for name, preserving the cpath
// search-path convention of the system this core's ABI is modeled on.
type Loader struct {
	mu     sync.RWMutex
	byName map[string]Module

	searchPath string

	cache *lru.Cache[string, Module]
}

// NewLoader returns a Loader with no modules registered and an LRU cache
// holding up to cacheSize resolved entries. cacheSize <= 0 falls back to a
// reasonable default.
func NewLoader(cacheSize int) *Loader {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New[string, Module](cacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which we just
		// guarded against.
		panic(err)
	}
	return &Loader{byName: make(map[string]Module), cache: cache}
}

// SetSearchPath configures the cpath template used for plugin.Open
// fallback, e.g. "./modules/?.so".
func (l *Loader) SetSearchPath(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.searchPath = path
}

// Register makes m resolvable under name. Re-registering a name replaces
// the previous module and evicts any cached resolution for it.
func (l *Loader) Register(name string, m Module) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byName[name] = m
	l.cache.Remove(name)
}

// Load resolves name to a Module, consulting the LRU cache and the
// in-process registry before falling back to opening a plugin at
// searchPath.
func (l *Loader) Load(name string) (Module, error) {
	if m, ok := l.cache.Get(name); ok {
		return m, nil
	}

	l.mu.RLock()
	m, ok := l.byName[name]
	path := l.searchPath
	l.mu.RUnlock()
	if ok {
		l.cache.Add(name, m)
		return m, nil
	}

	m, err := loadPlugin(path, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrLoadFailed, name)
	}
	l.cache.Add(name, m)
	return m, nil
}

func loadPlugin(searchPath, name string) (Module, error) {
	if searchPath == "" {
		return nil, fmt.Errorf("module: no search path configured for %q", name)
	}
	p, err := plugin.Open(strings.Replace(searchPath, "?", name, 1))
	if err != nil {
		return nil, fmt.Errorf("module: open plugin %q: %w", name, err)
	}
	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("module: plugin %q missing symbol %q: %w", name, PluginSymbol, err)
	}
	m, ok := sym.(Module)
	if !ok {
		return nil, fmt.Errorf("module: plugin %q symbol %q is not a Module", name, PluginSymbol)
	}
	return m, nil
}
