package core

import "sync"

// ProtocolRegistry dispatches a protocol tag to its registered handler
// (spec.md §4.8, §5's "global process state"). Grounded on the teacher's
// opcode_dispatcher.go Register/Dispatch pattern, generalized from a
// uint16 opcode key to a Uint128 protocol tag.
type ProtocolRegistry struct {
	mu       sync.RWMutex
	handlers map[Uint128]MessageHandler
	// indexable mirrors spec.md §5's process-wide indexable-protocols set:
	// additive, initialized once, never cleared for the process lifetime.
	indexable map[Uint128]bool
}

// NewProtocolRegistry returns an empty registry.
func NewProtocolRegistry() *ProtocolRegistry {
	return &ProtocolRegistry{
		handlers:  make(map[Uint128]MessageHandler),
		indexable: make(map[Uint128]bool),
	}
}

// Register associates a handler with its own ProtocolTag(). It also marks
// the tag indexable, mirroring add_to_indexable_protocols (spec.md §5).
func (r *ProtocolRegistry) Register(h MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag := h.ProtocolTag()
	r.handlers[tag] = h
	r.indexable[tag] = true
}

// AddIndexableProtocol marks tag as indexable without requiring a handler,
// for protocols this process only burns into rather than executes
// messages for.
func (r *ProtocolRegistry) AddIndexableProtocol(tag Uint128) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexable[tag] = true
}

// IsIndexable reports whether tag has ever been registered or added.
func (r *ProtocolRegistry) IsIndexable(tag Uint128) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexable[tag]
}

// Dispatch returns the handler registered for tag, if any.
func (r *ProtocolRegistry) Dispatch(tag Uint128) (MessageHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[tag]
	return h, ok
}
