package topic

import (
	"sort"
	"sync"
)

// Registry maps topic patterns to handlers. The zero value is not usable; call NewRegistry.
type Registry[H any] struct {
	mu       sync.RWMutex
	handlers map[string]H
}

// NewRegistry creates an empty registry
func NewRegistry[H any]() *Registry[H] {
	return &Registry[H]{
		handlers: make(map[string]H),
	}
}

// Register stores handler under pattern, replacing any previous handler.
// It returns true if the pattern was not registered before.
func (r *Registry[H]) Register(pattern string, handler H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.handlers[pattern]
	r.handlers[pattern] = handler
	return !exists
}

// Unregister removes pattern and reports whether it was registered
func (r *Registry[H]) Unregister(pattern string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[pattern]; !exists {
		return false
	}
	delete(r.handlers, pattern)
	return true
}

// Match returns the handlers of every registered pattern matching topic
func (r *Registry[H]) Match(topic string) []H {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []H
	topicSegments := Split(topic)
	for pattern, handler := range r.handlers {
		if matchSegments(Split(pattern), topicSegments) {
			matched = append(matched, handler)
		}
	}
	return matched
}

// Lookup returns the handler registered for exactly pattern
func (r *Registry[H]) Lookup(pattern string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[pattern]
	return h, ok
}

// Patterns returns the registered patterns in sorted order
func (r *Registry[H]) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patterns := make([]string, 0, len(r.handlers))
	for pattern := range r.handlers {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	return patterns
}

// Len returns the number of registered patterns
func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Clear removes all registrations
func (r *Registry[H]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]H)
}
