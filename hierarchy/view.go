package hierarchy

import (
	"cogentcore.org/core/math32"
	"go.uber.org/zap"

	"github.com/hollowbranch/scenegraph/handle"
)

// viewNode is one entry in the ephemeral per-frame tree projection of the
// flat parent-index array. Child indices are recorded in discovery order.
type viewNode struct {
	node     handle.Handle
	xform    handle.Handle
	parent   int // index into view.nodes, -1 for roots
	children []int
}

// view is rebuilt from scratch at the start of every Update and is only
// valid until the next one. Nothing outside this package may retain it.
type view struct {
	nodes []viewNode
	roots []int
}

func (v *view) destroy() {
	for i := range v.nodes {
		v.nodes[i].children = nil
	}
	v.nodes = v.nodes[:0]
	v.roots = v.roots[:0]
}

// Update runs the per-frame hierarchy pass: the previous view is destroyed,
// a fresh tree is rebuilt from the flat parent indices, and world matrices
// are propagated depth-first from each root.
func (g *Graph) Update() {
	g.view.destroy()
	g.rebuildView()
	for _, root := range g.view.roots {
		g.propagate(root, nil, 0)
	}
}

// rebuildView reconstructs the tree purely from the parent-index array: one
// linear scan finds the roots, and each node re-scans the array for its
// children. Quadratic, which is fine at moderate node counts.
func (g *Graph) rebuildView() {
	for slot, nh := range g.nodes {
		if nh.IsInvalid() || g.parents[slot] != NoParent {
			continue
		}
		vi := g.addViewNode(uint32(slot), -1)
		g.view.roots = append(g.view.roots, vi)
		g.scanChildren(uint32(slot), vi, 0)
	}
}

func (g *Graph) addViewNode(slot uint32, parent int) int {
	g.view.nodes = append(g.view.nodes, viewNode{
		node:   g.nodes[slot],
		xform:  g.xforms[slot],
		parent: parent,
	})
	vi := len(g.view.nodes) - 1
	if parent >= 0 {
		g.view.nodes[parent].children = append(g.view.nodes[parent].children, vi)
	}
	return vi
}

func (g *Graph) scanChildren(parentSlot uint32, parentView int, depth int) {
	if depth > maxTreeDepth {
		g.log.Error("hierarchy depth limit exceeded while rebuilding view",
			zap.Uint32("slot", parentSlot))
		return
	}
	for slot, nh := range g.nodes {
		if nh.IsInvalid() || g.parents[slot] != parentSlot {
			continue
		}
		vi := g.addViewNode(uint32(slot), parentView)
		g.scanChildren(uint32(slot), vi, depth+1)
	}
}

// propagate walks the view depth-first. For nodes carrying a transform it
// recomputes the local matrix if dirty, combines it with the nearest
// ancestor world matrix, and writes the result back to the transform store.
// Transform-less nodes pass their inherited world matrix through unchanged,
// so a spatial node below any number of grouping nodes composes against the
// nearest ancestor that does carry a transform.
func (g *Graph) propagate(vi int, parentWorld *math32.Matrix4, depth int) {
	if depth > maxTreeDepth {
		g.log.Error("hierarchy depth limit exceeded during traversal",
			zap.Int("view_index", vi))
		return
	}

	vn := &g.view.nodes[vi]
	inherited := parentWorld
	if !vn.xform.IsInvalid() {
		g.xs.CalculateLocal(vn.xform)
		local := g.xs.Local(vn.xform)

		var world math32.Matrix4
		if parentWorld != nil {
			// Column-vector convention: the parent's transform applies
			// after the node's own local one.
			world.MulMatrices(parentWorld, &local)
		} else {
			world = local
		}
		g.xs.SetWorld(vn.xform, world)
		inherited = &world
	}

	for _, ci := range vn.children {
		g.propagate(ci, inherited, depth+1)
	}
}
