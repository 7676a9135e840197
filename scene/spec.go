package scene

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spec is the declarative form of a scene: a named tree of node specs.
type Spec struct {
	Name  string     `yaml:"name"`
	Nodes []NodeSpec `yaml:"nodes"`
}

// NodeSpec describes one hierarchy node. Position/rotation/scale are
// optional; a node specifying none of them becomes a transform-less
// grouping node. Rotation is Euler angles in degrees.
type NodeSpec struct {
	Name     string      `yaml:"name"`
	Position *[3]float32 `yaml:"position"`
	Rotation *[3]float32 `yaml:"rotation"`
	Scale    *[3]float32 `yaml:"scale"`
	Tint     string      `yaml:"tint"`
	Script   string      `yaml:"script"`
	Children []NodeSpec  `yaml:"children"`
}

// Spatial reports whether the node spec carries any transform data.
func (n NodeSpec) Spatial() bool {
	return n.Position != nil || n.Rotation != nil || n.Scale != nil
}

// ParseSpec decodes a scene spec from yaml.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("scene: unmarshal spec: %w", err)
	}
	if len(spec.Nodes) == 0 {
		return nil, fmt.Errorf("scene: spec %q defines no nodes", spec.Name)
	}
	return &spec, nil
}

// scriptPaths returns the distinct script references in the spec, in
// first-appearance order.
func (s *Spec) scriptPaths() []string {
	var out []string
	seen := map[string]bool{}
	var walk func(nodes []NodeSpec)
	walk = func(nodes []NodeSpec) {
		for _, n := range nodes {
			if n.Script != "" && !seen[n.Script] {
				seen[n.Script] = true
				out = append(out, n.Script)
			}
			walk(n.Children)
		}
	}
	walk(s.Nodes)
	return out
}

// ParseColor parses a "#rrggbb" hex color. An empty string yields white.
func ParseColor(s string) (color.RGBA, error) {
	if s == "" {
		return color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("scene: color %q must be #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("scene: color %q: %w", s, err)
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xff,
	}, nil
}
