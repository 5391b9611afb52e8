// Package registry holds the in-memory building card database.
package registry

import (
	"sort"
	"sync"
	"time"
)

// Card is one registered building card.
type Card struct {
	UID          string
	BuildingType uint8
	FirstSeen    time.Time
	LastSeen     time.Time
}

// EventFunc is invoked after a successful add or remove, outside the
// registry lock, so it may safely call back into the registry.
type EventFunc func(buildingType uint8, uid string)

// Registry maps card UIDs to building cards. All operations are safe for
// concurrent use; snapshots and query results are independent copies.
type Registry struct {
	mu        sync.Mutex
	cards     map[string]Card
	onAdded   EventFunc
	onRemoved EventFunc
}

func New() *Registry {
	return &Registry{cards: make(map[string]Card)}
}

// SetOnAdded installs the hook fired once per successful Add.
func (r *Registry) SetOnAdded(fn EventFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAdded = fn
}

// SetOnRemoved installs the hook fired once per successful Remove.
func (r *Registry) SetOnRemoved(fn EventFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemoved = fn
}

// Add registers a new card. If the UID is already present only LastSeen
// is refreshed: the stored building type is sticky and Add returns false.
// Empty UIDs are rejected without mutating state.
func (r *Registry) Add(uid string, buildingType uint8) bool {
	if uid == "" {
		return false
	}
	now := time.Now()

	r.mu.Lock()
	if c, ok := r.cards[uid]; ok {
		c.LastSeen = now
		r.cards[uid] = c
		r.mu.Unlock()
		return false
	}
	r.cards[uid] = Card{UID: uid, BuildingType: buildingType, FirstSeen: now, LastSeen: now}
	fn := r.onAdded
	r.mu.Unlock()

	if fn != nil {
		fn(buildingType, uid)
	}
	return true
}

// Remove deletes a card and reports whether a deletion occurred.
func (r *Registry) Remove(uid string) bool {
	r.mu.Lock()
	c, ok := r.cards[uid]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.cards, uid)
	fn := r.onRemoved
	r.mu.Unlock()

	if fn != nil {
		fn(c.BuildingType, uid)
	}
	return true
}

// Has reports whether a card with the given UID is registered.
func (r *Registry) Has(uid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cards[uid]
	return ok
}

// Get returns a copy of the card for uid.
func (r *Registry) Get(uid string) (Card, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[uid]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cards)
}

// Clear empties the registry. No removal hooks fire.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cards = make(map[string]Card)
}

// CountByType counts cards of the given building type. Registries hold
// physical card counts, so the linear scan is fine.
func (r *Registry) CountByType(buildingType uint8) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.cards {
		if c.BuildingType == buildingType {
			n++
		}
	}
	return n
}

// HasType reports whether any card of the given building type exists.
func (r *Registry) HasType(buildingType uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cards {
		if c.BuildingType == buildingType {
			return true
		}
	}
	return false
}

// ByType returns a copy of all cards of the given building type keyed by UID.
func (r *Registry) ByType(buildingType uint8) map[string]Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Card)
	for uid, c := range r.cards {
		if c.BuildingType == buildingType {
			out[uid] = c
		}
	}
	return out
}

// Snapshot returns a point-in-time copy of all cards, ordered by UID.
func (r *Registry) Snapshot() []Card {
	r.mu.Lock()
	out := make([]Card, 0, len(r.cards))
	for _, c := range r.cards {
		out = append(out, c)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UID < out[j].UID
	})
	return out
}

// All returns a copy of the full UID -> card mapping.
func (r *Registry) All() map[string]Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Card, len(r.cards))
	for uid, c := range r.cards {
		out[uid] = c
	}
	return out
}
