package detection

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry accumulates the categories observed during a capture session and the subset the user
// has hidden. Hidden categories are never pruned when they stop appearing, and a category first
// seen after the user hid others is visible by default.
type Registry struct {
	mu        sync.RWMutex
	known     map[string]struct{}
	hidden    map[string]struct{}
	listeners []func(known []string)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		known:  map[string]struct{}{},
		hidden: map[string]struct{}{},
	}
}

// OnCategoriesChange registers fn to be called with the sorted known set whenever
// RecordCategories adds a category or Reset clears a non-empty set.
func (r *Registry) OnCategoriesChange(fn func(known []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// RecordCategories adds every category in the batch to the known set. When all of them are
// already known it does nothing at all, notifies no one, and returns false.
func (r *Registry) RecordCategories(categories []string) bool {
	categories = lo.Compact(categories)

	r.mu.RLock()
	_, hasNew := lo.Find(categories, func(c string) bool {
		_, ok := r.known[c]
		return !ok
	})
	r.mu.RUnlock()
	if !hasNew {
		return false
	}

	r.mu.Lock()
	added := false
	for _, c := range categories {
		if _, ok := r.known[c]; !ok {
			r.known[c] = struct{}{}
			added = true
		}
	}
	known := sortedKeys(r.known)
	listeners := append([]func([]string){}, r.listeners...)
	r.mu.Unlock()

	if !added {
		return false
	}
	for _, fn := range listeners {
		fn(known)
	}
	return true
}

// ToggleVisibility flips whether category is hidden and returns its new hidden state.
func (r *Registry) ToggleVisibility(category string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hidden[category]; ok {
		delete(r.hidden, category)
		return false
	}
	r.hidden[category] = struct{}{}
	return true
}

// IsHidden reports whether category is currently hidden.
func (r *Registry) IsHidden(category string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.hidden[category]
	return ok
}

// VisibleRegions returns the regions whose category is not hidden, preserving order. It is
// evaluated against the hidden set at call time.
func (r *Registry) VisibleRegions(all []Region) []Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(all, func(region Region, _ int) bool {
		_, hidden := r.hidden[region.Category]
		return !hidden
	})
}

// Known returns the known categories, sorted.
func (r *Registry) Known() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.known)
}

// Hidden returns the hidden categories, sorted.
func (r *Registry) Hidden() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.hidden)
}

// Reset forgets both the known and the hidden categories.
func (r *Registry) Reset() {
	r.mu.Lock()
	hadKnown := len(r.known) > 0
	r.known = map[string]struct{}{}
	r.hidden = map[string]struct{}{}
	listeners := append([]func([]string){}, r.listeners...)
	r.mu.Unlock()

	if !hadKnown {
		return
	}
	for _, fn := range listeners {
		fn([]string{})
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := lo.Keys(set)
	sort.Strings(keys)
	return keys
}
