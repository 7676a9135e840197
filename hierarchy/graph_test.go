package hierarchy

import (
	"math"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"

	"github.com/hollowbranch/scenegraph/handle"
	"github.com/hollowbranch/scenegraph/xform"
)

func newTestGraph(t *testing.T) (*Graph, *xform.Store) {
	t.Helper()
	xs := xform.NewStore(xform.Config{InitialCapacity: 32}, nil)
	return NewGraph(xs, 8, nil), xs
}

// checkLevels asserts the structural invariant over every occupied slot:
// roots sit at level 0 and every other node one below its parent.
func checkLevels(t *testing.T, g *Graph) {
	t.Helper()
	for i, nh := range g.nodes {
		if nh.IsInvalid() {
			continue
		}
		if g.parents[i] == NoParent {
			if g.levels[i] != 0 {
				t.Fatalf("root slot %d has level %d", i, g.levels[i])
			}
			continue
		}
		p := g.parents[i]
		if g.nodes[p].IsInvalid() {
			t.Fatalf("slot %d parent %d is unoccupied", i, p)
		}
		if g.levels[i] != g.levels[p]+1 {
			t.Fatalf("slot %d level %d, parent level %d", i, g.levels[i], g.levels[p])
		}
	}
}

func TestAddLevels(t *testing.T) {
	g, _ := newTestGraph(t)

	r := g.AddRoot()
	a := g.AddChild(r)
	b := g.AddChild(a)
	c := g.AddChild(b)
	d := g.AddChild(r)

	for i, want := range map[int]uint8{0: 0, 1: 1, 2: 2, 3: 3, 4: 1} {
		h := []handle.Handle{r, a, b, c, d}[i]
		got, ok := g.Level(h)
		if !ok || got != want {
			t.Fatalf("node %d: Level() = %d,%v, want %d", i, got, ok, want)
		}
	}
	checkLevels(t, g)
}

func TestAddChildInvalidParent(t *testing.T) {
	g, _ := newTestGraph(t)
	if h := g.AddChild(handle.Invalid()); !h.IsInvalid() {
		t.Fatalf("AddChild with invalid parent should fail, got %v", h)
	}
}

func TestRemoveReparentsChildren(t *testing.T) {
	g, _ := newTestGraph(t)

	r := g.AddRoot()
	a := g.AddChild(r)
	b := g.AddChild(a)
	c := g.AddChild(b)

	g.RemoveNode(&a, false)
	if !a.IsInvalid() {
		t.Fatalf("RemoveNode must invalidate the handle")
	}
	if got := g.NodeCount(); got != 3 {
		t.Fatalf("NodeCount() = %d, want 3", got)
	}

	// b moves up under r, c stays under b, and levels re-derive.
	if p := g.Parent(b); p != r {
		t.Fatalf("b's parent = %v, want root %v", p, r)
	}
	if lvl, _ := g.Level(b); lvl != 1 {
		t.Fatalf("b's level = %d, want 1", lvl)
	}
	if lvl, _ := g.Level(c); lvl != 2 {
		t.Fatalf("c's level = %d, want 2", lvl)
	}
	checkLevels(t, g)
}

func TestRemoveRootPromotesChildren(t *testing.T) {
	g, _ := newTestGraph(t)

	r := g.AddRoot()
	a := g.AddChild(r)
	b := g.AddChild(a)

	g.RemoveNode(&r, false)

	if p := g.Parent(a); !p.IsInvalid() {
		t.Fatalf("a should be a root now, parent = %v", p)
	}
	if lvl, _ := g.Level(a); lvl != 0 {
		t.Fatalf("a's level = %d, want 0", lvl)
	}
	if lvl, _ := g.Level(b); lvl != 1 {
		t.Fatalf("b's level = %d, want 1", lvl)
	}
	checkLevels(t, g)
}

func TestRemoveStaleAndInvalidAreNoOps(t *testing.T) {
	g, _ := newTestGraph(t)

	r := g.AddRoot()
	n := g.AddChild(r)
	stale := n
	g.RemoveNode(&n, false)

	// The slot gets reoccupied; the old handle is now stale, not invalid.
	fresh := g.AddChild(r)
	if fresh.Index != stale.Index {
		t.Fatalf("expected slot reuse, got %d and %d", stale.Index, fresh.Index)
	}

	before := g.NodeCount()
	g.RemoveNode(&stale, false)
	if g.NodeCount() != before {
		t.Fatalf("stale remove must be a no-op")
	}
	if stale.IsInvalid() {
		t.Fatalf("rejected handle must be left untouched")
	}
	if _, ok := g.Level(fresh); !ok {
		t.Fatalf("fresh occupant must survive a stale remove")
	}

	inv := handle.Invalid()
	g.RemoveNode(&inv, false)
	g.RemoveNode(nil, false)
	if g.NodeCount() != before {
		t.Fatalf("invalid remove must be a no-op")
	}
}

func TestRemoveReleasesTransform(t *testing.T) {
	g, xs := newTestGraph(t)

	xh := xs.CreateFromPosition(math32.Vec3(1, 2, 3))
	keep := xh
	n := g.AddRootWithTransform(xh)

	g.RemoveNode(&n, true)
	if xs.Valid(keep) {
		t.Fatalf("transform should be destroyed when releaseTransform is set")
	}

	xh2 := xs.CreateFromPosition(math32.Vec3(4, 5, 6))
	keep2 := xh2
	n2 := g.AddRootWithTransform(xh2)
	g.RemoveNode(&n2, false)
	if !xs.Valid(keep2) {
		t.Fatalf("transform must survive removal without releaseTransform")
	}
}

func TestWorldMatrixComposition(t *testing.T) {
	g, xs := newTestGraph(t)

	root := g.AddRootWithTransform(xs.CreateFromPosition(math32.Vec3(5, 0, 0)))
	child := g.AddChildWithTransform(root, xs.CreateFromPosition(math32.Vec3(0, 3, 0)))

	g.Update()

	world := xs.World(g.TransformHandle(child))
	pos := world.Pos()
	assert.InDelta(t, 5, pos.X, 1e-5)
	assert.InDelta(t, 3, pos.Y, 1e-5)
	assert.InDelta(t, 0, pos.Z, 1e-5)
}

func TestRoundTrip(t *testing.T) {
	g, xs := newTestGraph(t)

	rx := xs.Create()
	cx := xs.Create()
	r := g.AddRootWithTransform(rx)
	c := g.AddChildWithTransform(r, cx)

	xs.SetPosition(rx, math32.Vec3(1, 0, 0))
	xs.SetPosition(cx, math32.Vec3(0, 1, 0))

	g.Update()

	got := g.WorldPosition(c)
	assert.InDelta(t, 1, got.X, 1e-5)
	assert.InDelta(t, 1, got.Y, 1e-5)
	assert.InDelta(t, 0, got.Z, 1e-5)
}

func TestGroupingNodesPassWorldThrough(t *testing.T) {
	g, xs := newTestGraph(t)

	// root (transform) -> group (no transform) -> leaf (transform)
	root := g.AddRootWithTransform(xs.CreateFromPosition(math32.Vec3(1, 0, 0)))
	group := g.AddChild(root)
	leaf := g.AddChildWithTransform(group, xs.CreateFromPosition(math32.Vec3(0, 1, 0)))

	g.Update()

	got := g.WorldPosition(leaf)
	assert.InDelta(t, 1, got.X, 1e-5)
	assert.InDelta(t, 1, got.Y, 1e-5)

	// A grouping root: children compose directly against world space.
	g2, xs2 := newTestGraph(t)
	top := g2.AddRoot()
	solo := g2.AddChildWithTransform(top, xs2.CreateFromPosition(math32.Vec3(2, 0, 0)))
	g2.Update()
	got2 := g2.WorldPosition(solo)
	assert.InDelta(t, 2, got2.X, 1e-5)
}

func TestNestedRotationMovesChildren(t *testing.T) {
	g, xs := newTestGraph(t)

	pivot := xs.CreateFromRotation(math32.NewQuatAxisAngle(math32.Vec3(0, 0, 1), math32.DegToRad(90)))
	root := g.AddRootWithTransform(pivot)
	child := g.AddChildWithTransform(root, xs.CreateFromPosition(math32.Vec3(1, 0, 0)))

	g.Update()

	// Rotating the parent 90 degrees about Z carries the child from +X
	// to +Y.
	got := g.WorldPosition(child)
	assert.InDelta(t, 0, got.X, 1e-5)
	assert.InDelta(t, 1, got.Y, 1e-5)
}

func TestStructuralChangeReflectedNextUpdate(t *testing.T) {
	g, xs := newTestGraph(t)

	root := g.AddRootWithTransform(xs.CreateFromPosition(math32.Vec3(1, 0, 0)))
	a := g.AddChildWithTransform(root, xs.CreateFromPosition(math32.Vec3(0, 1, 0)))
	b := g.AddChildWithTransform(a, xs.CreateFromPosition(math32.Vec3(1, 0, 0)))

	g.Update()
	got := g.WorldPosition(b)
	assert.InDelta(t, 2, got.X, 1e-5)
	assert.InDelta(t, 1, got.Y, 1e-5)

	// Removing a re-parents b under root; the next update must compose b
	// directly against root.
	g.RemoveNode(&a, true)
	g.Update()
	got = g.WorldPosition(b)
	assert.InDelta(t, 2, got.X, 1e-5)
	assert.InDelta(t, 0, got.Y, 1e-5)
}

func TestWorldRotationAndScaleOnDemand(t *testing.T) {
	g, xs := newTestGraph(t)

	rootX := xs.CreateFromPositionRotationScale(
		math32.Vector3{},
		math32.NewQuatAxisAngle(math32.Vec3(0, 0, 1), math32.DegToRad(90)),
		math32.Vec3(2, 2, 2))
	childX := xs.CreateFromPositionRotationScale(
		math32.Vector3{},
		math32.NewQuatAxisAngle(math32.Vec3(0, 0, 1), math32.DegToRad(90)),
		math32.Vec3(3, 3, 3))

	root := g.AddRootWithTransform(rootX)
	child := g.AddChildWithTransform(root, childX)

	// No Update needed: these queries walk the parent chain directly.
	rot := g.WorldRotation(child)
	want := math32.NewQuatAxisAngle(math32.Vec3(0, 0, 1), float32(math.Pi))
	assert.InDelta(t, float64(want.Z), float64(rot.Z), 1e-5)
	assert.InDelta(t, float64(want.W), float64(rot.W), 1e-5)

	scale := g.WorldScale(child)
	assert.InDelta(t, 6, scale.X, 1e-5)
	assert.InDelta(t, 6, scale.Y, 1e-5)
	assert.InDelta(t, 6, scale.Z, 1e-5)
}

func TestGraphGrowth(t *testing.T) {
	g, _ := newTestGraph(t)

	if got := g.Capacity(); got != 8 {
		t.Fatalf("Capacity() = %d, want 8", got)
	}
	handles := make([]handle.Handle, 0, 9)
	r := g.AddRoot()
	handles = append(handles, r)
	for i := 0; i < 8; i++ {
		handles = append(handles, g.AddChild(r))
	}
	if got := g.Capacity(); got != 16 {
		t.Fatalf("Capacity() = %d after growth, want 16", got)
	}
	if g.Capacity()%8 != 0 {
		t.Fatalf("capacity must stay a multiple of 8, got %d", g.Capacity())
	}
	for i, h := range handles {
		if _, ok := g.Level(h); !ok {
			t.Fatalf("handle %d no longer resolves after growth", i)
		}
	}
	checkLevels(t, g)
}
