package catalog

import "sync"

// Catalog is the in-memory generator registry. One instance is constructed
// at process start and passed by reference to every consumer; nothing here
// depends on there being exactly one.
//
// Registration order is preserved: ByPriority and ByEventPattern return
// entries in the order they were registered, which is the tie-break order
// the selector relies on.
//
// Thread-safety: the catalog is read-mostly after the startup registration
// pass, but all methods are safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries []RegisteredGenerator
	byID    map[string]int // id -> index into entries, -1 if unregistered
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{
		byID: make(map[string]int),
	}
}

// Register stores a generator under reg.ID.
// Returns *DuplicateRegistrationError if the ID is already registered;
// the existing registration is left untouched.
func (c *Catalog) Register(reg Registration, gen Generator) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.byID[reg.ID]; ok && idx >= 0 {
		return &DuplicateRegistrationError{ID: reg.ID}
	}

	c.entries = append(c.entries, RegisteredGenerator{Registration: reg, Generator: gen})
	c.byID[reg.ID] = len(c.entries) - 1
	return nil
}

// Unregister removes the generator with the given ID.
// Returns whether a removal occurred. Exists for tests; production catalogs
// are append-only after startup.
func (c *Catalog) Unregister(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.byID[id]
	if !ok || idx < 0 {
		return false
	}

	// Tombstone the slot rather than compacting, so indices held in byID
	// for the remaining entries stay valid and registration order holds.
	c.entries[idx] = RegisteredGenerator{}
	c.byID[id] = -1
	return true
}

// All returns every registered generator in registration order.
func (c *Catalog) All() []RegisteredGenerator {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]RegisteredGenerator, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Generator == nil {
			continue // tombstone
		}
		out = append(out, e)
	}
	return out
}

// ByID returns the generator registered under id, or nil if absent.
func (c *Catalog) ByID(id string) *RegisteredGenerator {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.byID[id]
	if !ok || idx < 0 {
		return nil
	}
	e := c.entries[idx]
	return &e
}

// ByPriority returns all generators registered at exactly tier, in
// registration order.
func (c *Catalog) ByPriority(tier Priority) []RegisteredGenerator {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []RegisteredGenerator
	for _, e := range c.entries {
		if e.Generator == nil {
			continue
		}
		if e.Registration.Priority == tier {
			out = append(out, e)
		}
	}
	return out
}

// ByEventPattern returns all generators that declare an event pattern
// matching eventID, in registration order. Generators without a pattern are
// excluded, never treated as wildcard matches.
func (c *Catalog) ByEventPattern(eventID string) []RegisteredGenerator {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []RegisteredGenerator
	for _, e := range c.entries {
		if e.Generator == nil {
			continue
		}
		m := e.Registration.EventPattern
		if m == nil {
			continue
		}
		if m.Matches(eventID) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of live registrations. Useful for startup logging.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.entries {
		if e.Generator != nil {
			n++
		}
	}
	return n
}
