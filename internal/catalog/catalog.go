package catalog

import (
	"fmt"
	"sort"
	"sync"
)

// VersionKey is the settings-store key holding the version selector. It is
// part of the catalog so it validates like any other setting, but the config
// compiler never emits it as a native directive.
const VersionKey = "version"

// Catalog maintains the option definitions for every setting the manager
// understands.
type Catalog struct {
	mu      sync.RWMutex
	options map[string]*Option
	order   []string // registration order, used for deterministic output
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		options: make(map[string]*Option),
	}
}

// Register adds an option definition.
// Returns an error if an option with the same key already exists.
func (c *Catalog) Register(opt Option) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.options[opt.Key]; exists {
		return fmt.Errorf("%w: %s", ErrOptionAlreadyRegistered, opt.Key)
	}

	o := &opt
	c.options[opt.Key] = o
	c.order = append(c.order, opt.Key)
	return nil
}

// MustRegister registers an option and panics on error.
// Used for the built-in catalog at construction time.
func (c *Catalog) MustRegister(opt Option) {
	if err := c.Register(opt); err != nil {
		panic(err)
	}
}

// Get returns the option definition for the given key, or nil.
func (c *Catalog) Get(key string) *Option {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.options[key]
}

// Has checks if an option is registered.
func (c *Catalog) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.options[key]
	return ok
}

// Keys returns all registered keys in registration order.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Materialize produces the per-version settings surface: options not present
// in the version are dropped, per-version overrides are merged in, and all
// version bookkeeping is stripped from the result.
func (c *Catalog) Materialize(version string) (map[string]Resolved, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Resolved, len(c.options))
	for key, opt := range c.options {
		ok, err := opt.availableIn(version)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out[key] = opt.resolve(version)
	}
	return out, nil
}

// Defaults extracts the default value of every materialized option.
func (c *Catalog) Defaults(version string) (map[string]any, error) {
	resolved, err := c.Materialize(version)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(resolved))
	for key, r := range resolved {
		out[key] = r.Default
	}
	return out, nil
}

// Tabs returns the distinct tab names in sorted order.
func (c *Catalog) Tabs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{})
	var tabs []string
	for _, opt := range c.options {
		if _, ok := seen[opt.Tab]; ok {
			continue
		}
		seen[opt.Tab] = struct{}{}
		tabs = append(tabs, opt.Tab)
	}
	sort.Strings(tabs)
	return tabs
}

// ErrOptionAlreadyRegistered is returned when registering a duplicate key.
var ErrOptionAlreadyRegistered = fmt.Errorf("option already registered")
