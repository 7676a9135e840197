// Package hierarchy maintains parent/child structure for scene nodes as flat
// structure-of-arrays storage, decoupled from the transform data it points
// at. Nodes reference transforms by generational handle and never own them
// structurally; a node may carry no transform at all and act as a pure
// grouping node.
//
// Once per frame, Update rebuilds an ephemeral tree view from the flat
// parent-index array and propagates world matrices depth-first through it.
package hierarchy

import (
	"math"

	"go.uber.org/zap"

	"github.com/hollowbranch/scenegraph/handle"
	"github.com/hollowbranch/scenegraph/xform"
)

// NoParent is the parent-index sentinel marking a root node.
const NoParent = ^uint32(0)

// maxTreeDepth bounds traversal recursion. It matches the depth space of the
// uint8 level field; a chain deeper than this indicates a corrupt graph and
// traversal stops descending rather than recursing without bound.
const maxTreeDepth = math.MaxUint8

// Graph records parent/child relationships between nodes in parallel arrays
// indexed by slot. It is single-threaded: all mutation and traversal happens
// on the simulation thread, once per frame, with reads by other phases
// strictly ordered after Update returns.
type Graph struct {
	// nodes[i] is the handle identifying the occupant of slot i; an invalid
	// handle marks a free slot.
	nodes []handle.Handle

	// parents[i] is the slot index of node i's parent, or NoParent.
	parents []uint32

	// levels[i] is node i's depth, 0 for roots.
	levels []uint8

	// dirty is kept per node for future propagation culling; the current
	// traversal recomputes unconditionally and only reads transform-level
	// dirtiness.
	dirty []bool

	// xforms[i] is the transform referenced by node i, possibly invalid.
	xforms []handle.Handle

	xs   *xform.Store
	view view
	log  *zap.Logger
}

// NewGraph creates a hierarchy graph resolving transform handles against xs.
// initialCapacity is rounded up to a multiple of 8; zero or negative selects
// a small default.
func NewGraph(xs *xform.Store, initialCapacity int, log *zap.Logger) *Graph {
	if log == nil {
		log = zap.NewNop()
	}
	if initialCapacity <= 0 {
		initialCapacity = 8
	}
	initialCapacity = (initialCapacity + 7) &^ 7

	g := &Graph{xs: xs, log: log}
	g.extend(initialCapacity)
	return g
}

// extend appends n free slots to every backing array in lockstep.
func (g *Graph) extend(n int) {
	for i := 0; i < n; i++ {
		g.nodes = append(g.nodes, handle.Invalid())
		g.parents = append(g.parents, NoParent)
		g.levels = append(g.levels, 0)
		g.dirty = append(g.dirty, false)
		g.xforms = append(g.xforms, handle.Invalid())
	}
}

// allocate returns the first free slot, doubling the arrays when full.
// Capacity starts as a multiple of 8 and doubling keeps it one.
func (g *Graph) allocate() uint32 {
	for i, nh := range g.nodes {
		if nh.IsInvalid() {
			return uint32(i)
		}
	}
	first := len(g.nodes)
	grow := first
	if grow < 1 {
		grow = 1
	}
	g.extend(grow)
	return uint32(first)
}

// AddRoot adds a node with no parent and no transform.
func (g *Graph) AddRoot() handle.Handle {
	return g.addNode(NoParent, handle.Invalid())
}

// AddRootWithTransform adds a parentless node referencing the given
// transform.
func (g *Graph) AddRootWithTransform(xh handle.Handle) handle.Handle {
	return g.addNode(NoParent, xh)
}

// AddChild adds a transform-less node under parent. An invalid or stale
// parent handle is rejected with a warning and an invalid handle is
// returned.
func (g *Graph) AddChild(parent handle.Handle) handle.Handle {
	slot, ok := g.resolve(parent, "child add")
	if !ok {
		return handle.Invalid()
	}
	return g.addNode(slot, handle.Invalid())
}

// AddChildWithTransform adds a node under parent referencing the given
// transform.
func (g *Graph) AddChildWithTransform(parent handle.Handle, xh handle.Handle) handle.Handle {
	slot, ok := g.resolve(parent, "child add")
	if !ok {
		return handle.Invalid()
	}
	return g.addNode(slot, xh)
}

func (g *Graph) addNode(parentSlot uint32, xh handle.Handle) handle.Handle {
	level := uint8(0)
	if parentSlot != NoParent {
		if g.levels[parentSlot] == maxTreeDepth {
			g.log.Error("hierarchy depth limit reached, node not added",
				zap.Uint32("parent_slot", parentSlot))
			return handle.Invalid()
		}
		level = g.levels[parentSlot] + 1
	}

	slot := g.allocate()
	g.nodes[slot] = handle.New(slot)
	g.parents[slot] = parentSlot
	g.levels[slot] = level
	g.dirty[slot] = false
	g.xforms[slot] = xh
	return g.nodes[slot]
}

// resolve maps a node handle to its slot, warning on invalid or stale
// handles.
func (g *Graph) resolve(h handle.Handle, op string) (uint32, bool) {
	if h.IsInvalid() || int(h.Index) >= len(g.nodes) || g.nodes[h.Index].IsInvalid() {
		g.log.Warn("hierarchy node handle is invalid",
			zap.String("op", op),
			zap.Stringer("handle", h))
		return 0, false
	}
	if g.nodes[h.Index].Generation != h.Generation {
		g.log.Warn("hierarchy node handle is stale",
			zap.String("op", op),
			zap.Stringer("handle", h),
			zap.Uint64("current_generation", g.nodes[h.Index].Generation))
		return 0, false
	}
	return h.Index, true
}

// RemoveNode removes the node, re-parenting its direct children to the
// removed node's former parent (roots if it had none) and re-deriving levels
// for the affected subtrees. When releaseTransform is set the referenced
// transform is destroyed as well; otherwise only the reference is dropped.
// The passed handle is invalidated. Stale and invalid handles are rejected
// as distinct no-op cases.
func (g *Graph) RemoveNode(h *handle.Handle, releaseTransform bool) {
	if h == nil {
		g.log.Warn("hierarchy node remove called with nil handle")
		return
	}
	slot, ok := g.resolve(*h, "node remove")
	if !ok {
		return
	}

	formerParent := g.parents[slot]
	for i := range g.parents {
		if g.nodes[i].IsInvalid() || g.parents[i] != slot {
			continue
		}
		g.parents[i] = formerParent
		g.relevel(uint32(i), 0)
	}

	if releaseTransform && !g.xforms[slot].IsInvalid() {
		g.xs.Destroy(&g.xforms[slot])
	}
	g.xforms[slot].Invalidate()
	g.parents[slot] = NoParent
	g.levels[slot] = 0
	g.dirty[slot] = false
	g.nodes[slot].Invalidate()
	h.Invalidate()
}

// relevel re-derives the level of slot from its parent and recurses through
// its descendants.
func (g *Graph) relevel(slot uint32, depth int) {
	if depth > maxTreeDepth {
		g.log.Error("hierarchy depth limit exceeded while re-leveling",
			zap.Uint32("slot", slot))
		return
	}
	if g.parents[slot] == NoParent {
		g.levels[slot] = 0
	} else {
		g.levels[slot] = g.levels[g.parents[slot]] + 1
	}
	for i := range g.parents {
		if !g.nodes[i].IsInvalid() && g.parents[i] == slot {
			g.relevel(uint32(i), depth+1)
		}
	}
}

// TransformHandle returns the transform referenced by the node, which may be
// the invalid handle for grouping nodes.
func (g *Graph) TransformHandle(h handle.Handle) handle.Handle {
	slot, ok := g.resolve(h, "transform handle get")
	if !ok {
		return handle.Invalid()
	}
	return g.xforms[slot]
}

// Parent returns the handle of the node's parent, or an invalid handle for
// roots and unresolvable handles.
func (g *Graph) Parent(h handle.Handle) handle.Handle {
	slot, ok := g.resolve(h, "parent get")
	if !ok || g.parents[slot] == NoParent {
		return handle.Invalid()
	}
	return g.nodes[g.parents[slot]]
}

// Level returns the node's depth, 0 for roots. ok is false when the handle
// does not resolve.
func (g *Graph) Level(h handle.Handle) (uint8, bool) {
	slot, ok := g.resolve(h, "level get")
	if !ok {
		return 0, false
	}
	return g.levels[slot], true
}

// NodeCount returns the number of occupied slots.
func (g *Graph) NodeCount() int {
	n := 0
	for _, nh := range g.nodes {
		if !nh.IsInvalid() {
			n++
		}
	}
	return n
}

// Capacity returns the current slot count.
func (g *Graph) Capacity() int {
	return len(g.nodes)
}
