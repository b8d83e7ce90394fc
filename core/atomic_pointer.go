package core

import "fmt"

// overlay buffers the writes performed since the matching Checkpoint call.
// Scalar writes replace outright; list writes are recorded as the tail
// appended during this frame only, so that committing a frame into its
// parent is a cheap concatenation rather than a full list copy.
type overlay struct {
	scalars     map[string][]byte
	listAppends map[string][][]byte
}

func newOverlay() *overlay {
	return &overlay{scalars: make(map[string][]byte), listAppends: make(map[string][][]byte)}
}

// pointerRoot is the shared state behind every AtomicPointer derived from
// the same base store, so that a checkpoint opened on one view is visible
// to every prefix view derived from it (spec.md §6).
type pointerRoot struct {
	store KVStore
	stack []*overlay
}

// AtomicPointer is the transactional façade over a KVStore (C9, spec.md
// §6): nested checkpoint/commit/rollback, with Derive producing a
// prefix-scoped sub-view that shares the same transaction stack. Grounded
// on the teacher's core/storage.go LRU-over-backing-store layering, which
// uses the same "view stacks on top of a shared root" shape for its
// write-through cache.
type AtomicPointer struct {
	root   *pointerRoot
	prefix []byte
}

// NewAtomicPointer wraps store with no open transaction.
func NewAtomicPointer(store KVStore) *AtomicPointer {
	return &AtomicPointer{root: &pointerRoot{store: store}}
}

// Derive returns a view of the same pointer with prefix appended to every
// key it touches. The derived view shares this pointer's transaction
// stack: a checkpoint opened on either is visible to both.
func (p *AtomicPointer) Derive(prefix []byte) *AtomicPointer {
	np := make([]byte, 0, len(p.prefix)+len(prefix))
	np = append(np, p.prefix...)
	np = append(np, prefix...)
	return &AtomicPointer{root: p.root, prefix: np}
}

func (p *AtomicPointer) fullKey(key []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(key))
	out = append(out, p.prefix...)
	out = append(out, key...)
	return out
}

// Checkpoint opens a new transaction frame. Writes made after this call go
// to the new frame until it is committed or rolled back.
func (p *AtomicPointer) Checkpoint() {
	p.root.stack = append(p.root.stack, newOverlay())
}

// Commit folds the innermost frame into its parent (or, if it is the
// outermost frame, into the backing store) and pops it. Commit panics if
// called with no open checkpoint — a programming error, not recoverable
// chain data (mirrors the teacher's lock-discipline panics in
// core/storage.go).
func (p *AtomicPointer) Commit() error {
	n := len(p.root.stack)
	if n == 0 {
		panic("protorunes: commit called with no open checkpoint")
	}
	top := p.root.stack[n-1]
	p.root.stack = p.root.stack[:n-1]

	if len(p.root.stack) == 0 {
		for k, v := range top.scalars {
			if err := p.root.store.Set([]byte(k), v); err != nil {
				return &IOError{Op: "commit.set", Err: err}
			}
		}
		for k, items := range top.listAppends {
			for _, it := range items {
				if err := p.root.store.Append([]byte(k), it); err != nil {
					return &IOError{Op: "commit.append", Err: err}
				}
			}
		}
		return nil
	}

	parent := p.root.stack[len(p.root.stack)-1]
	for k, v := range top.scalars {
		parent.scalars[k] = v
	}
	for k, items := range top.listAppends {
		parent.listAppends[k] = append(parent.listAppends[k], items...)
	}
	return nil
}

// Rollback discards the innermost frame's writes entirely.
func (p *AtomicPointer) Rollback() {
	n := len(p.root.stack)
	if n == 0 {
		panic("protorunes: rollback called with no open checkpoint")
	}
	p.root.stack = p.root.stack[:n-1]
}

// Depth reports how many checkpoints are currently open.
func (p *AtomicPointer) Depth() int { return len(p.root.stack) }

// Get reads key, consulting open frames innermost-first before falling
// back to the backing store.
func (p *AtomicPointer) Get(key []byte) ([]byte, bool, error) {
	fk := p.fullKey(key)
	s := string(fk)
	for i := len(p.root.stack) - 1; i >= 0; i-- {
		if v, ok := p.root.stack[i].scalars[s]; ok {
			return v, true, nil
		}
	}
	v, ok, err := p.root.store.Get(fk)
	if err != nil {
		return nil, false, &IOError{Op: "get", Err: err}
	}
	return v, ok, nil
}

// Set writes key=value into the innermost open frame, or straight through
// to the store if no checkpoint is open.
func (p *AtomicPointer) Set(key []byte, value []byte) error {
	fk := p.fullKey(key)
	if len(p.root.stack) == 0 {
		if err := p.root.store.Set(fk, value); err != nil {
			return &IOError{Op: "set", Err: err}
		}
		return nil
	}
	top := p.root.stack[len(p.root.stack)-1]
	top.scalars[string(fk)] = value
	return nil
}

// Append adds value to the end of the list at key, recorded against the
// innermost open frame.
func (p *AtomicPointer) Append(key []byte, value []byte) error {
	fk := p.fullKey(key)
	if len(p.root.stack) == 0 {
		if err := p.root.store.Append(fk, value); err != nil {
			return &IOError{Op: "append", Err: err}
		}
		return nil
	}
	top := p.root.stack[len(p.root.stack)-1]
	s := string(fk)
	top.listAppends[s] = append(top.listAppends[s], value)
	return nil
}

// Length reports the list at key's element count across the store and
// every open frame's pending appends.
func (p *AtomicPointer) Length(key []byte) (uint32, error) {
	fk := p.fullKey(key)
	n, err := p.root.store.Length(fk)
	if err != nil {
		return 0, &IOError{Op: "length", Err: err}
	}
	s := string(fk)
	for _, ov := range p.root.stack {
		n += uint32(len(ov.listAppends[s]))
	}
	return n, nil
}

// SelectIndex returns the index-th element of the list at key, reading
// through the store's committed entries first and then each open frame's
// pending appends in the order they were made.
func (p *AtomicPointer) SelectIndex(key []byte, index uint32) ([]byte, error) {
	fk := p.fullKey(key)
	base, err := p.root.store.Length(fk)
	if err != nil {
		return nil, &IOError{Op: "select_index", Err: err}
	}
	if index < base {
		v, err := p.root.store.SelectIndex(fk, index)
		if err != nil {
			return nil, &IOError{Op: "select_index", Err: err}
		}
		return v, nil
	}
	offset := index - base
	s := string(fk)
	for _, ov := range p.root.stack {
		items := ov.listAppends[s]
		if offset < uint32(len(items)) {
			return items[offset], nil
		}
		offset -= uint32(len(items))
	}
	return nil, &IOError{Op: "select_index", Err: fmt.Errorf("index %d out of range for %x", index, fk)}
}
