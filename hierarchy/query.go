package hierarchy

import (
	"cogentcore.org/core/math32"
	"go.uber.org/zap"

	"github.com/hollowbranch/scenegraph/handle"
)

// WorldPosition returns the node's world-space position read from its
// transform's cached world matrix. It is only meaningful after Update has
// run for the current frame. Nodes without a transform yield the zero
// vector with a warning.
func (g *Graph) WorldPosition(h handle.Handle) math32.Vector3 {
	slot, ok := g.resolve(h, "world position get")
	if !ok {
		return math32.Vector3{}
	}
	xh := g.xforms[slot]
	if xh.IsInvalid() {
		g.log.Warn("world position requested for node without transform",
			zap.Stringer("handle", h))
		return math32.Vector3{}
	}
	world := g.xs.World(xh)
	return world.Pos()
}

// WorldRotation computes the node's world-space rotation on demand by
// walking the parent chain to the root and composing local rotations
// root-to-leaf. O(depth) per call and independent of the cached world
// matrix, so it stays correct between frame updates; per-frame-consistent
// consumers should prefer the transform store's cached world matrix.
func (g *Graph) WorldRotation(h handle.Handle) math32.Quat {
	slot, ok := g.resolve(h, "world rotation get")
	if !ok {
		var q math32.Quat
		q.SetIdentity()
		return q
	}

	var world math32.Quat
	world.SetIdentity()
	for _, xh := range g.ancestorChain(slot) {
		world.SetMul(g.xs.Rotation(xh))
	}
	return world
}

// WorldScale computes the node's world-space scale on demand, composing
// local scales componentwise from the root down. Same cost and consistency
// caveats as WorldRotation.
func (g *Graph) WorldScale(h handle.Handle) math32.Vector3 {
	slot, ok := g.resolve(h, "world scale get")
	if !ok {
		return math32.Vec3(1, 1, 1)
	}

	world := math32.Vec3(1, 1, 1)
	for _, xh := range g.ancestorChain(slot) {
		world = world.Mul(g.xs.Scale(xh))
	}
	return world
}

// ancestorChain returns the transform handles along the path root→slot,
// skipping nodes without transforms. The chain is collected leaf-to-root on
// a stack and reversed so composition applies the root's components first.
func (g *Graph) ancestorChain(slot uint32) []handle.Handle {
	var stack []handle.Handle
	cur := slot
	for depth := 0; ; depth++ {
		if depth > maxTreeDepth {
			g.log.Error("hierarchy depth limit exceeded walking ancestor chain",
				zap.Uint32("slot", slot))
			break
		}
		if !g.xforms[cur].IsInvalid() {
			stack = append(stack, g.xforms[cur])
		}
		if g.parents[cur] == NoParent {
			break
		}
		cur = g.parents[cur]
	}
	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}
	return stack
}
