package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// registry holds all registered dialects.
var (
	registryMu sync.RWMutex
	dialects   = make(map[string]Dialect)
)

// Register adds a dialect to the global registry.
// This is called from each engine file's init() function.
// Panics if a dialect with the same name is already registered.
func Register(d Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := d.Engine()
	if _, exists := dialects[name]; exists {
		panic(fmt.Sprintf("dialect %q already registered", name))
	}
	dialects[name] = d

	for _, alias := range d.Aliases() {
		if _, exists := dialects[alias]; exists {
			panic(fmt.Sprintf("dialect alias %q already registered", alias))
		}
		dialects[alias] = d
	}
}

// Get retrieves a dialect by engine name or alias (case-insensitive).
func Get(nameOrAlias string) (Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	d, exists := dialects[strings.ToLower(nameOrAlias)]
	if !exists {
		return nil, fmt.Errorf("unknown database engine: %q (available: %v)", nameOrAlias, Available())
	}
	return d, nil
}

// Available returns a sorted list of registered engine names.
// This includes only primary names, not aliases.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, d := range dialects {
		seen[d.Engine()] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered returns true if an engine with the given name or alias exists.
func IsRegistered(nameOrAlias string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, exists := dialects[strings.ToLower(nameOrAlias)]
	return exists
}
