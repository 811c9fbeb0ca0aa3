package adapters

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds a fresh Adapter instance.
type Factory func() Adapter

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"openai":    func() Adapter { return NewOpenAIAdapter() },
		"anthropic": func() Adapter { return NewAnthropicAdapter() },
	}
)

// Register adds or replaces a named adapter factory. Intended for tests
// and embedders that bring their own providers.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New resolves an adapter by provider name. Unknown names report the
// registered providers so typos are cheap to fix.
func New(name string) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return factory(), nil
}

// Names returns the registered provider names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
