// Package script runs per-node tengo behaviors. A behavior script defines an
// `update(node, dt, elapsed)` function; every frame the runtime calls it
// with an accessor table for the node's transform. All mutation goes through
// the transform store's public setters, so scripted motion participates in
// dirty tracking like any other caller.
package script

import (
	"fmt"

	"cogentcore.org/core/math32"
	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/hollowbranch/scenegraph/handle"
	"github.com/hollowbranch/scenegraph/xform"
)

const dispatchScript = `
update(__node, __dt, __elapsed)
`

// Behavior is a compiled script bound to one transform.
type Behavior struct {
	name     string
	compiled *tengo.Compiled
	xs       *xform.Store
	xh       handle.Handle
	elapsed  float64
}

// New compiles src and binds it to the transform addressed by xh.
func New(name string, src []byte, xs *xform.Store, xh handle.Handle) (*Behavior, error) {
	if xs == nil {
		return nil, fmt.Errorf("script: behavior %q: nil transform store", name)
	}
	if xh.IsInvalid() {
		return nil, fmt.Errorf("script: behavior %q: invalid transform handle", name)
	}

	full := string(src) + "\n" + dispatchScript
	s := tengo.NewScript([]byte(full))
	_ = s.Add("__node", map[string]any{})
	_ = s.Add("__dt", 0.0)
	_ = s.Add("__elapsed", 0.0)
	s.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))

	compiled, err := s.Compile()
	if err != nil {
		return nil, fmt.Errorf("script: compile behavior %q: %w", name, err)
	}

	return &Behavior{name: name, compiled: compiled, xs: xs, xh: xh}, nil
}

// Name returns the behavior's script name.
func (b *Behavior) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

// Update advances the behavior by dt seconds and runs the script's update
// function once.
func (b *Behavior) Update(dt float64) error {
	if b == nil || b.compiled == nil {
		return nil
	}
	b.elapsed += dt

	if err := b.compiled.Set("__node", b.nodeTable()); err != nil {
		return fmt.Errorf("script: behavior %q: %w", b.name, err)
	}
	if err := b.compiled.Set("__dt", dt); err != nil {
		return fmt.Errorf("script: behavior %q: %w", b.name, err)
	}
	if err := b.compiled.Set("__elapsed", b.elapsed); err != nil {
		return fmt.Errorf("script: behavior %q: %w", b.name, err)
	}
	if err := b.compiled.Run(); err != nil {
		return fmt.Errorf("script: behavior %q update: %w", b.name, err)
	}
	return nil
}

// nodeTable builds the accessor map handed to the script as `node`.
func (b *Behavior) nodeTable() map[string]any {
	return map[string]any{
		"get_position": &tengo.UserFunction{Name: "get_position", Value: func(args ...tengo.Object) (tengo.Object, error) {
			p := b.xs.Position(b.xh)
			return vecObject(p), nil
		}},
		"set_position": &tengo.UserFunction{Name: "set_position", Value: func(args ...tengo.Object) (tengo.Object, error) {
			v, err := vecArgs("set_position", args)
			if err != nil {
				return nil, err
			}
			b.xs.SetPosition(b.xh, v)
			return tengo.UndefinedValue, nil
		}},
		"translate": &tengo.UserFunction{Name: "translate", Value: func(args ...tengo.Object) (tengo.Object, error) {
			v, err := vecArgs("translate", args)
			if err != nil {
				return nil, err
			}
			b.xs.Translate(b.xh, v)
			return tengo.UndefinedValue, nil
		}},
		"set_rotation_euler": &tengo.UserFunction{Name: "set_rotation_euler", Value: func(args ...tengo.Object) (tengo.Object, error) {
			v, err := vecArgs("set_rotation_euler", args)
			if err != nil {
				return nil, err
			}
			var q math32.Quat
			q.SetFromEuler(v.MulScalar(math32.DegToRadFactor))
			b.xs.SetRotation(b.xh, q)
			return tengo.UndefinedValue, nil
		}},
		"rotate_z": &tengo.UserFunction{Name: "rotate_z", Value: func(args ...tengo.Object) (tengo.Object, error) {
			if len(args) != 1 {
				return nil, tengo.ErrWrongNumArguments
			}
			rad, ok := tengo.ToFloat64(args[0])
			if !ok {
				return nil, tengo.ErrInvalidArgumentType{Name: "rotate_z", Expected: "float"}
			}
			b.xs.Rotate(b.xh, math32.NewQuatAxisAngle(math32.Vec3(0, 0, 1), float32(rad)))
			return tengo.UndefinedValue, nil
		}},
		"set_scale": &tengo.UserFunction{Name: "set_scale", Value: func(args ...tengo.Object) (tengo.Object, error) {
			v, err := vecArgs("set_scale", args)
			if err != nil {
				return nil, err
			}
			b.xs.SetScale(b.xh, v)
			return tengo.UndefinedValue, nil
		}},
	}
}

func vecObject(v math32.Vector3) tengo.Object {
	return &tengo.ImmutableArray{Value: []tengo.Object{
		&tengo.Float{Value: float64(v.X)},
		&tengo.Float{Value: float64(v.Y)},
		&tengo.Float{Value: float64(v.Z)},
	}}
}

func vecArgs(name string, args []tengo.Object) (math32.Vector3, error) {
	if len(args) != 3 {
		return math32.Vector3{}, tengo.ErrWrongNumArguments
	}
	var out [3]float32
	for i, a := range args {
		f, ok := tengo.ToFloat64(a)
		if !ok {
			return math32.Vector3{}, tengo.ErrInvalidArgumentType{Name: name, Expected: "float"}
		}
		out[i] = float32(f)
	}
	return math32.Vec3(out[0], out[1], out[2]), nil
}
