// Package xform implements the transform store: a structure-of-arrays
// database of position/rotation/scale components with cached local and world
// matrices, addressed by generational handles.
//
// The store is a passive cache. Setters only mark a slot dirty; nothing here
// recomputes matrices on its own. The hierarchy traversal decides when
// CalculateLocal runs and writes world matrices back through SetWorld.
package xform

import (
	"cogentcore.org/core/math32"
	"go.uber.org/zap"

	"github.com/hollowbranch/scenegraph/handle"
)

// DefaultCapacity is the slot count used when a config carries none.
const DefaultCapacity = 128

// Config carries the startup parameters for a Store.
type Config struct {
	// InitialCapacity is the starting slot count. Must be nonzero; a zero
	// value is rejected with a logged error and replaced by DefaultCapacity.
	// Rounded up to a multiple of 8.
	InitialCapacity int `yaml:"initial_capacity"`
}

// Store holds all transform components in parallel arrays indexed by slot.
// Every array grows in lockstep so a slot index addresses the same logical
// transform in each of them.
type Store struct {
	positions []math32.Vector3
	rotations []math32.Quat
	scales    []math32.Vector3
	locals    []math32.Matrix4
	worlds    []math32.Matrix4

	// generations[i] is the generation of the handle currently occupying
	// slot i, or handle.InvalidGeneration for a free slot.
	generations []uint64

	// dirty is the list of slot indices whose cached local matrix is stale.
	// dirtyPos[slot] is that slot's position inside the list, or -1 for a
	// clean slot, so marking stays idempotent and clearing is a swap with
	// the last entry. The list length is always the dirty slot count.
	dirty    []uint32
	dirtyPos []int32

	log *zap.Logger
}

// NewStore creates a transform store with the configured initial capacity.
func NewStore(cfg Config, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	capacity := cfg.InitialCapacity
	if capacity <= 0 {
		log.Error("transform store initial capacity must be nonzero, using default",
			zap.Int("requested", cfg.InitialCapacity),
			zap.Int("default", DefaultCapacity))
		capacity = DefaultCapacity
	}
	capacity = roundUp8(capacity)

	s := &Store{log: log}
	s.extend(capacity)
	return s
}

// roundUp8 rounds n up to the next multiple of 8, which keeps growth
// alignment-friendly and doubling closed under the property.
func roundUp8(n int) int {
	return (n + 7) &^ 7
}

// extend appends n free slots to every backing array in lockstep.
func (s *Store) extend(n int) {
	for i := 0; i < n; i++ {
		s.positions = append(s.positions, math32.Vector3{})
		s.rotations = append(s.rotations, math32.Quat{})
		s.scales = append(s.scales, math32.Vector3{})
		s.locals = append(s.locals, identity4())
		s.worlds = append(s.worlds, identity4())
		s.generations = append(s.generations, handle.InvalidGeneration)
		s.dirtyPos = append(s.dirtyPos, -1)
	}
}

// allocate returns a free slot index, growing the arrays by doubling when
// every slot is occupied.
func (s *Store) allocate() uint32 {
	for i, gen := range s.generations {
		if gen == handle.InvalidGeneration {
			return uint32(i)
		}
	}
	first := len(s.generations)
	s.extend(first) // double
	return uint32(first)
}

// Capacity returns the current slot count.
func (s *Store) Capacity() int {
	return len(s.generations)
}

// Valid reports whether h currently addresses a live transform.
func (s *Store) Valid(h handle.Handle) bool {
	if h.IsInvalid() || int(h.Index) >= len(s.generations) {
		return false
	}
	return s.generations[h.Index] == h.Generation
}

func (s *Store) check(h handle.Handle, op string) bool {
	if s.Valid(h) {
		return true
	}
	s.log.Warn("transform handle is invalid or stale",
		zap.String("op", op),
		zap.Stringer("handle", h))
	return false
}

// Create allocates an identity transform. The slot is deliberately left out
// of the dirty list: its cached local matrix already equals the identity
// composition, so there is nothing to recompute.
func (s *Store) Create() handle.Handle {
	return s.create(math32.Vector3{}, identityQuat(), math32.Vec3(1, 1, 1), false)
}

// CreateFromPosition allocates a transform at the given position.
func (s *Store) CreateFromPosition(position math32.Vector3) handle.Handle {
	return s.create(position, identityQuat(), math32.Vec3(1, 1, 1), true)
}

// CreateFromRotation allocates a transform with the given rotation.
func (s *Store) CreateFromRotation(rotation math32.Quat) handle.Handle {
	return s.create(math32.Vector3{}, rotation, math32.Vec3(1, 1, 1), true)
}

// CreateFromPositionRotation allocates a transform with the given position
// and rotation and unit scale.
func (s *Store) CreateFromPositionRotation(position math32.Vector3, rotation math32.Quat) handle.Handle {
	return s.create(position, rotation, math32.Vec3(1, 1, 1), true)
}

// CreateFromPositionRotationScale allocates a fully specified transform.
func (s *Store) CreateFromPositionRotationScale(position math32.Vector3, rotation math32.Quat, scale math32.Vector3) handle.Handle {
	return s.create(position, rotation, scale, true)
}

func (s *Store) create(position math32.Vector3, rotation math32.Quat, scale math32.Vector3, dirty bool) handle.Handle {
	slot := s.allocate()
	h := handle.New(slot)

	s.positions[slot] = position
	s.rotations[slot] = rotation
	s.scales[slot] = scale
	s.locals[slot] = identity4()
	s.worlds[slot] = identity4()
	s.generations[slot] = h.Generation

	if dirty {
		s.markDirty(slot)
	}
	return h
}

// Destroy releases the transform's slot for reuse and invalidates the passed
// handle. Any other handle to the slot becomes stale.
func (s *Store) Destroy(h *handle.Handle) {
	if h == nil {
		s.log.Warn("transform destroy called with nil handle")
		return
	}
	if !s.check(*h, "destroy") {
		return
	}
	slot := h.Index
	s.generations[slot] = handle.InvalidGeneration
	s.clearDirty(slot)
	h.Invalidate()
}

// markDirty appends slot to the dirty list unless it is already present.
func (s *Store) markDirty(slot uint32) {
	if s.dirtyPos[slot] >= 0 {
		return
	}
	s.dirtyPos[slot] = int32(len(s.dirty))
	s.dirty = append(s.dirty, slot)
}

// clearDirty removes slot from the dirty list by swapping the last entry
// into its place. Slots that never get recomputed therefore cannot pin
// stale entries in the list.
func (s *Store) clearDirty(slot uint32) {
	pos := s.dirtyPos[slot]
	if pos < 0 {
		return
	}
	last := len(s.dirty) - 1
	moved := s.dirty[last]
	s.dirty[pos] = moved
	s.dirtyPos[moved] = pos
	s.dirty = s.dirty[:last]
	s.dirtyPos[slot] = -1
}

// DirtyCount returns the number of slots with a stale cached local matrix.
func (s *Store) DirtyCount() int {
	return len(s.dirty)
}

// Position returns the transform's position, or the zero vector for an
// invalid handle.
func (s *Store) Position(h handle.Handle) math32.Vector3 {
	if !s.check(h, "position get") {
		return math32.Vector3{}
	}
	return s.positions[h.Index]
}

// SetPosition sets the transform's position and marks it dirty.
func (s *Store) SetPosition(h handle.Handle, position math32.Vector3) {
	if !s.check(h, "position set") {
		return
	}
	s.positions[h.Index] = position
	s.markDirty(h.Index)
}

// Rotation returns the transform's rotation, or the identity quaternion for
// an invalid handle.
func (s *Store) Rotation(h handle.Handle) math32.Quat {
	if !s.check(h, "rotation get") {
		return identityQuat()
	}
	return s.rotations[h.Index]
}

// SetRotation sets the transform's rotation and marks it dirty.
func (s *Store) SetRotation(h handle.Handle, rotation math32.Quat) {
	if !s.check(h, "rotation set") {
		return
	}
	s.rotations[h.Index] = rotation
	s.markDirty(h.Index)
}

// Scale returns the transform's scale, or the unit scale for an invalid
// handle.
func (s *Store) Scale(h handle.Handle) math32.Vector3 {
	if !s.check(h, "scale get") {
		return math32.Vec3(1, 1, 1)
	}
	return s.scales[h.Index]
}

// SetScale sets the transform's scale and marks it dirty.
func (s *Store) SetScale(h handle.Handle, scale math32.Vector3) {
	if !s.check(h, "scale set") {
		return
	}
	s.scales[h.Index] = scale
	s.markDirty(h.Index)
}

// SetPositionRotation sets position and rotation together.
func (s *Store) SetPositionRotation(h handle.Handle, position math32.Vector3, rotation math32.Quat) {
	if !s.check(h, "position rotation set") {
		return
	}
	s.positions[h.Index] = position
	s.rotations[h.Index] = rotation
	s.markDirty(h.Index)
}

// SetPositionRotationScale sets all three components together.
func (s *Store) SetPositionRotationScale(h handle.Handle, position math32.Vector3, rotation math32.Quat, scale math32.Vector3) {
	if !s.check(h, "position rotation scale set") {
		return
	}
	s.positions[h.Index] = position
	s.rotations[h.Index] = rotation
	s.scales[h.Index] = scale
	s.markDirty(h.Index)
}

// Translate offsets the transform's position by delta.
func (s *Store) Translate(h handle.Handle, delta math32.Vector3) {
	if !s.check(h, "translate") {
		return
	}
	s.positions[h.Index].SetAdd(delta)
	s.markDirty(h.Index)
}

// Rotate applies rotation on top of the transform's current rotation.
func (s *Store) Rotate(h handle.Handle, rotation math32.Quat) {
	if !s.check(h, "rotate") {
		return
	}
	s.rotations[h.Index].SetMul(rotation)
	s.markDirty(h.Index)
}

// ScaleBy multiplies the transform's scale componentwise by factor.
func (s *Store) ScaleBy(h handle.Handle, factor math32.Vector3) {
	if !s.check(h, "scale by") {
		return
	}
	s.scales[h.Index] = s.scales[h.Index].Mul(factor)
	s.markDirty(h.Index)
}

// TranslateRotate applies a translation and a rotation in one call.
func (s *Store) TranslateRotate(h handle.Handle, delta math32.Vector3, rotation math32.Quat) {
	if !s.check(h, "translate rotate") {
		return
	}
	s.positions[h.Index].SetAdd(delta)
	s.rotations[h.Index].SetMul(rotation)
	s.markDirty(h.Index)
}

// CalculateLocal recomputes the cached local matrix for a dirty slot. The
// composition is scale first, then rotation, then translation; with this
// library's column-vector matrices that is T·R·S, built by SetTransform.
// Clean slots are left untouched.
func (s *Store) CalculateLocal(h handle.Handle) {
	if !s.check(h, "calculate local") {
		return
	}
	slot := h.Index
	if s.dirtyPos[slot] < 0 {
		return
	}
	s.locals[slot].SetTransform(s.positions[slot], s.rotations[slot], s.scales[slot])
	s.clearDirty(slot)
}

// Local returns the cached local matrix without recomputing it. Callers that
// need it fresh must run CalculateLocal first; the per-frame hierarchy
// traversal does exactly that.
func (s *Store) Local(h handle.Handle) math32.Matrix4 {
	if !s.check(h, "local get") {
		return identity4()
	}
	return s.locals[h.Index]
}

// World returns the cached world matrix written by the most recent hierarchy
// update, or the identity matrix for an invalid handle.
func (s *Store) World(h handle.Handle) math32.Matrix4 {
	if !s.check(h, "world get") {
		return identity4()
	}
	return s.worlds[h.Index]
}

// SetWorld writes the transform's cached world matrix.
func (s *Store) SetWorld(h handle.Handle, world math32.Matrix4) {
	if !s.check(h, "world set") {
		return
	}
	s.worlds[h.Index] = world
}

func identityQuat() math32.Quat {
	var q math32.Quat
	q.SetIdentity()
	return q
}

// identity4 returns the identity matrix by value; math32.Identity4 hands out
// a pointer to a fresh allocation.
func identity4() math32.Matrix4 {
	return *math32.Identity4()
}
