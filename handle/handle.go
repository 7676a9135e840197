// Package handle provides generational handles: index-plus-generation pairs
// that identify slots in dense backing arrays. A handle whose generation no
// longer matches the owning store's slot generation is stale and can be
// detected instead of aliasing whatever now occupies the slot.
package handle

import (
	"fmt"
	"sync/atomic"
)

const (
	// InvalidIndex is the sentinel slot index carried by invalid handles.
	InvalidIndex = ^uint32(0)
	// InvalidGeneration is the sentinel generation carried by invalid handles
	// and stored in freed slots.
	InvalidGeneration = ^uint64(0)
)

// generations is never reused, so a handle minted for a slot can never
// collide with a later occupant of the same slot.
var generations atomic.Uint64

// Handle references a slot in a dense array without exposing a raw pointer.
type Handle struct {
	Index      uint32
	Generation uint64
}

// New returns a handle for the given slot with a fresh, process-wide-unique
// generation.
func New(index uint32) Handle {
	return Handle{Index: index, Generation: generations.Add(1)}
}

// Invalid returns the sentinel handle.
func Invalid() Handle {
	return Handle{Index: InvalidIndex, Generation: InvalidGeneration}
}

// IsInvalid reports whether either field holds its sentinel value.
func (h Handle) IsInvalid() bool {
	return h.Index == InvalidIndex || h.Generation == InvalidGeneration
}

// Invalidate sets both fields to their sentinel values. It does not touch the
// backing store the handle came from.
func (h *Handle) Invalidate() {
	if h == nil {
		return
	}
	h.Index = InvalidIndex
	h.Generation = InvalidGeneration
}

func (h Handle) String() string {
	if h.IsInvalid() {
		return "handle(invalid)"
	}
	return fmt.Sprintf("handle(%d:%d)", h.Index, h.Generation)
}
