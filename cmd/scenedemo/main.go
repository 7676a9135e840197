// Command scenedemo loads a scene spec, runs its behaviors and hierarchy
// update once per frame, and draws every spatial node at its cached world
// position. With -watch it reloads the scene whenever the spec or a script
// changes on disk.
package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"cogentcore.org/core/math32"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"go.uber.org/zap"

	"github.com/hollowbranch/scenegraph/scene"
)

const (
	screenWidth   = 1280
	screenHeight  = 720
	pixelsPerUnit = 32
	nodeSize      = 16
)

type game struct {
	scenePath string
	cfg       scene.Config
	scene     *scene.Scene
	watcher   *scene.Watcher
	log       *zap.Logger
	frames    int
}

func (g *game) Update() error {
	g.frames++

	if g.watcher != nil {
		select {
		case name, ok := <-g.watcher.Events:
			if ok {
				g.reload(name)
			}
		default:
		}
	}

	dt := 1.0 / float64(ebiten.TPS())
	g.scene.Update(dt)
	return nil
}

func (g *game) reload(changed string) {
	s, err := scene.Load(g.scenePath, g.cfg, g.log)
	if err != nil {
		g.log.Warn("scene reload failed, keeping previous scene",
			zap.String("changed", changed),
			zap.Error(err))
		return
	}
	g.scene = s
	g.log.Info("scene reloaded", zap.String("changed", changed))
}

func (g *game) Draw(screen *ebiten.Image) {
	cx := float32(screenWidth) / 2
	cy := float32(screenHeight) / 2

	for _, n := range g.scene.Nodes() {
		xh := g.scene.Graph.TransformHandle(n.Handle)
		if xh.IsInvalid() {
			continue
		}
		world := g.scene.Xforms.World(xh)
		pos := world.Pos()

		// The renderer only reads the cached world matrix; scale comes from
		// the basis column lengths rather than a parent-chain walk.
		sx := basisLength(world[0], world[1], world[2])
		sy := basisLength(world[4], world[5], world[6])
		w := nodeSize * sx
		h := nodeSize * sy

		x := cx + pos.X*pixelsPerUnit - w/2
		y := cy - pos.Y*pixelsPerUnit - h/2
		vector.DrawFilledRect(screen, x, y, w, h, n.Tint, false)
	}

	ebitenutil.DebugPrint(screen, fmt.Sprintf(
		"%s   nodes: %d   FPS: %.2f", g.scene.Name, g.scene.Graph.NodeCount(), ebiten.ActualFPS()))
}

func basisLength(x, y, z float32) float32 {
	v := x*x + y*y + z*z
	if v <= 0 {
		return 1
	}
	return math32.Sqrt(v)
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func main() {
	scenePath := flag.String("scene", "scenes/orbit.yaml", "scene spec to load")
	watch := flag.Bool("watch", false, "reload the scene when its files change")
	xformCap := flag.Int("xform-cap", 128, "initial transform store capacity")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := scene.Config{
		InitialTransformCapacity: *xformCap,
		InitialNodeCapacity:      32,
	}
	s, err := scene.Load(*scenePath, cfg, logger)
	if err != nil {
		logger.Fatal("load scene", zap.Error(err))
	}

	g := &game{scenePath: *scenePath, cfg: cfg, scene: s, log: logger}

	if *watch {
		w, err := scene.NewWatcher(filepath.Dir(*scenePath))
		if err != nil {
			logger.Fatal("start watcher", zap.Error(err))
		}
		defer w.Close()
		g.watcher = w
	}

	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("scenedemo")
	if err := ebiten.RunGame(g); err != nil {
		logger.Fatal("run", zap.Error(err))
	}
}
