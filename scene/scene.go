// Package scene builds hierarchy graphs and transform stores from
// declarative yaml specs and drives them each frame: behaviors first, then
// the hierarchy update.
package scene

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"cogentcore.org/core/math32"
	"go.uber.org/zap"

	"github.com/hollowbranch/scenegraph/handle"
	"github.com/hollowbranch/scenegraph/hierarchy"
	"github.com/hollowbranch/scenegraph/job"
	"github.com/hollowbranch/scenegraph/script"
	"github.com/hollowbranch/scenegraph/xform"
)

// Config carries scene startup parameters.
type Config struct {
	// InitialTransformCapacity seeds the transform store. Zero falls back
	// to the store default (with a logged error, per the store contract).
	InitialTransformCapacity int `yaml:"initial_transform_capacity"`
	// InitialNodeCapacity seeds the hierarchy graph.
	InitialNodeCapacity int `yaml:"initial_node_capacity"`
}

// Node is one named spatial entry of a built scene, in spec order.
type Node struct {
	Name   string
	Handle handle.Handle
	Tint   color.RGBA
}

// Scene owns a transform store and hierarchy graph pair built from a Spec,
// plus the behaviors attached to its nodes. It is the explicit context
// object collaborators go through; there is no global lookup.
type Scene struct {
	Name   string
	Xforms *xform.Store
	Graph  *hierarchy.Graph

	byName    map[string]handle.Handle
	nodes     []Node
	behaviors []*script.Behavior
	log       *zap.Logger
}

// Load reads a scene spec from disk, fetches any referenced behavior
// scripts through a job pool, and builds the scene. Script paths are
// resolved relative to the spec file.
func Load(path string, cfg Config, log *zap.Logger) (*Scene, error) {
	if log == nil {
		log = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scene: load %s: %w", path, err)
	}
	spec, err := ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("scene: load %s: %w", path, err)
	}

	scripts, err := loadScripts(filepath.Dir(path), spec.scriptPaths(), log)
	if err != nil {
		return nil, fmt.Errorf("scene: load %s: %w", path, err)
	}
	return Build(spec, scripts, cfg, log)
}

// loadScripts reads the referenced script files concurrently through the
// job pool, the way the asset layer loads everything else.
func loadScripts(dir string, paths []string, log *zap.Logger) (map[string][]byte, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	pool := job.NewPool(0, log)
	defer pool.Shutdown(context.Background())

	var mu sync.Mutex
	sources := make(map[string][]byte, len(paths))
	dones := make([]<-chan error, 0, len(paths))
	for _, p := range paths {
		p := p
		dones = append(dones, pool.Submit(context.Background(), job.Job{
			Name:     p,
			Priority: 1,
			Run: func(ctx context.Context) error {
				data, err := os.ReadFile(filepath.Join(dir, p))
				if err != nil {
					return err
				}
				mu.Lock()
				sources[p] = data
				mu.Unlock()
				return nil
			},
		}))
	}
	for _, done := range dones {
		if err := <-done; err != nil {
			return nil, fmt.Errorf("read script: %w", err)
		}
	}
	return sources, nil
}

// Build constructs the scene from an already-parsed spec and preloaded
// script sources.
func Build(spec *Spec, scripts map[string][]byte, cfg Config, log *zap.Logger) (*Scene, error) {
	if log == nil {
		log = zap.NewNop()
	}

	xs := xform.NewStore(xform.Config{InitialCapacity: cfg.InitialTransformCapacity}, log)
	s := &Scene{
		Name:   spec.Name,
		Xforms: xs,
		Graph:  hierarchy.NewGraph(xs, cfg.InitialNodeCapacity, log),
		byName: make(map[string]handle.Handle),
		log:    log,
	}

	for _, n := range spec.Nodes {
		if err := s.buildNode(n, handle.Invalid(), scripts); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scene) buildNode(n NodeSpec, parent handle.Handle, scripts map[string][]byte) error {
	if n.Name == "" {
		return fmt.Errorf("scene: node without name")
	}
	if _, dup := s.byName[n.Name]; dup {
		return fmt.Errorf("scene: duplicate node name %q", n.Name)
	}

	var xh handle.Handle
	if n.Spatial() {
		xh = s.createTransform(n)
	} else {
		xh = handle.Invalid()
	}

	var nh handle.Handle
	switch {
	case parent.IsInvalid() && xh.IsInvalid():
		nh = s.Graph.AddRoot()
	case parent.IsInvalid():
		nh = s.Graph.AddRootWithTransform(xh)
	case xh.IsInvalid():
		nh = s.Graph.AddChild(parent)
	default:
		nh = s.Graph.AddChildWithTransform(parent, xh)
	}
	if nh.IsInvalid() {
		return fmt.Errorf("scene: add node %q", n.Name)
	}
	s.byName[n.Name] = nh

	if n.Spatial() {
		tint, err := ParseColor(n.Tint)
		if err != nil {
			return fmt.Errorf("scene: node %q: %w", n.Name, err)
		}
		s.nodes = append(s.nodes, Node{Name: n.Name, Handle: nh, Tint: tint})
	}

	if n.Script != "" {
		if xh.IsInvalid() {
			return fmt.Errorf("scene: node %q: script on transform-less node", n.Name)
		}
		src, ok := scripts[n.Script]
		if !ok {
			return fmt.Errorf("scene: node %q: script %q not loaded", n.Name, n.Script)
		}
		b, err := script.New(n.Script, src, s.Xforms, xh)
		if err != nil {
			return fmt.Errorf("scene: node %q: %w", n.Name, err)
		}
		s.behaviors = append(s.behaviors, b)
	}

	for _, child := range n.Children {
		if err := s.buildNode(child, nh, scripts); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scene) createTransform(n NodeSpec) handle.Handle {
	pos := math32.Vector3{}
	if n.Position != nil {
		pos = math32.Vec3(n.Position[0], n.Position[1], n.Position[2])
	}
	var rot math32.Quat
	rot.SetIdentity()
	if n.Rotation != nil {
		rot.SetFromEuler(math32.Vec3(n.Rotation[0], n.Rotation[1], n.Rotation[2]).MulScalar(math32.DegToRadFactor))
	}

	switch {
	case n.Scale != nil:
		return s.Xforms.CreateFromPositionRotationScale(pos, rot,
			math32.Vec3(n.Scale[0], n.Scale[1], n.Scale[2]))
	case n.Position != nil && n.Rotation != nil:
		return s.Xforms.CreateFromPositionRotation(pos, rot)
	case n.Rotation != nil:
		return s.Xforms.CreateFromRotation(rot)
	default:
		return s.Xforms.CreateFromPosition(pos)
	}
}

// Update runs behaviors, then the per-frame hierarchy pass. Behavior errors
// are logged and skipped; scripted motion must not wedge the frame.
func (s *Scene) Update(dt float64) {
	for _, b := range s.behaviors {
		if err := b.Update(dt); err != nil {
			s.log.Warn("behavior update failed",
				zap.String("behavior", b.Name()),
				zap.Error(err))
		}
	}
	s.Graph.Update()
}

// Lookup returns the node handle registered under name.
func (s *Scene) Lookup(name string) (handle.Handle, bool) {
	h, ok := s.byName[name]
	return h, ok
}

// Nodes returns the spatial nodes in spec order.
func (s *Scene) Nodes() []Node {
	return s.nodes
}
