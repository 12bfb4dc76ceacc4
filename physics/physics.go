package physics

import (
	"fmt"
	"math"
	"time"

	"github.com/TFMV/echoes/models"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Layout advances node positions for one animation frame
type Layout interface {
	Step(snapshot *models.GraphSnapshot, store *PositionStore, vp models.Viewport)
	GetName() string
}

// Config holds the force constants of the simulation
type Config struct {
	Iterations     int     `yaml:"iterations" toml:"iterations" json:"iterations"`
	Centering      float64 `yaml:"centering" toml:"centering" json:"centering"`
	Repulsion      float64 `yaml:"repulsion" toml:"repulsion" json:"repulsion"`
	SpringLength   float64 `yaml:"spring_length" toml:"spring_length" json:"spring_length"`
	SpringConstant float64 `yaml:"spring_constant" toml:"spring_constant" json:"spring_constant"`
	Damping        float64 `yaml:"damping" toml:"damping" json:"damping"`
	Noise          float64 `yaml:"noise" toml:"noise" json:"noise"` // Drift intensity for the surreal layout
	Seed           int64   `yaml:"seed" toml:"seed" json:"seed"`
}

// DefaultConfig returns the reference constants
func DefaultConfig() Config {
	return Config{
		Iterations:     3,
		Centering:      0.001,
		Repulsion:      100,
		SpringLength:   100,
		SpringConstant: 0.01,
		Damping:        0.85,
	}
}

// ForceDirectedLayout combines centering, pairwise repulsion and link springs
type ForceDirectedLayout struct {
	cfg Config
}

// NewForceDirectedLayout creates a new force-directed layout
func NewForceDirectedLayout(cfg Config) *ForceDirectedLayout {
	if cfg.Iterations <= 0 {
		cfg.Iterations = 1
	}
	return &ForceDirectedLayout{cfg: cfg}
}

// GetName returns the name of the layout algorithm
func (fd *ForceDirectedLayout) GetName() string {
	return "Force-Directed Layout"
}

// Config returns the constants in use
func (fd *ForceDirectedLayout) Config() Config {
	return fd.cfg
}

type body struct {
	node *models.Node
	k    *Kinematics
}

// Step runs the configured number of sub-iterations. The store must already be
// reconciled against snapshot; nodes or edge endpoints without state are skipped.
func (fd *ForceDirectedLayout) Step(snapshot *models.GraphSnapshot, store *PositionStore, vp models.Viewport) {
	if vp.Degenerate() || snapshot == nil {
		return
	}

	bodies := make([]body, 0, len(snapshot.Nodes))
	for i := range snapshot.Nodes {
		node := &snapshot.Nodes[i]
		if k := store.entry(node.ID); k != nil {
			bodies = append(bodies, body{node: node, k: k})
		}
	}

	for i := 0; i < fd.cfg.Iterations; i++ {
		fd.iterate(snapshot, store, bodies, vp)
	}
}

func (fd *ForceDirectedLayout) iterate(snapshot *models.GraphSnapshot, store *PositionStore, bodies []body, vp models.Viewport) {
	center := vp.Center()

	for i := range bodies {
		a := bodies[i]

		// Pull toward the viewport center
		a.k.VX += (center.X - a.k.X) * fd.cfg.Centering
		a.k.VY += (center.Y - a.k.Y) * fd.cfg.Centering

		// Push away from every other node; the +1 caps the force at coincident positions
		for j := range bodies {
			if i == j {
				continue
			}
			b := bodies[j]
			dx := a.k.X - b.k.X
			dy := a.k.Y - b.k.Y
			dist := math.Sqrt(dx*dx+dy*dy) + 1
			force := (a.node.Size + b.node.Size) * fd.cfg.Repulsion / (dist * dist)
			a.k.VX += dx / dist * force
			a.k.VY += dy / dist * force
		}
	}

	// Hookean springs, once per edge
	for _, edge := range snapshot.Edges {
		src := store.entry(edge.Source)
		dst := store.entry(edge.Target)
		if src == nil || dst == nil {
			continue
		}
		dx := dst.X - src.X
		dy := dst.Y - src.Y
		dist := math.Sqrt(dx*dx+dy*dy) + 1
		force := (dist - fd.cfg.SpringLength) * edge.Strength * fd.cfg.SpringConstant
		src.VX += dx / dist * force
		src.VY += dy / dist * force
		dst.VX -= dx / dist * force
		dst.VY -= dy / dist * force
	}

	for _, b := range bodies {
		b.k.X += b.k.VX
		b.k.Y += b.k.VY
		b.k.VX *= fd.cfg.Damping
		b.k.VY *= fd.cfg.Damping

		// Clamp, not reflect: overshoot is silently capped at the margin
		margin := b.node.Size
		b.k.X = math.Max(margin, math.Min(vp.Width-margin, b.k.X))
		b.k.Y = math.Max(margin, math.Min(vp.Height-margin, b.k.Y))
	}
}

// SurrealLayout is a creative layout that lets nodes drift along a noise field
type SurrealLayout struct {
	baseLayout     Layout
	noiseGenerator opensimplex.Noise
	noiseScale     float64
	intensity      float64
	timeStep       float64
	seed           int64
}

// NewSurrealLayout creates a new surreal layout using the specified base layout
func NewSurrealLayout(base Layout, intensity float64, seed int64) *SurrealLayout {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SurrealLayout{
		baseLayout:     base,
		noiseGenerator: opensimplex.New(seed),
		noiseScale:     0.01,
		intensity:      intensity,
		seed:           seed,
	}
}

// GetName returns the name of the layout algorithm
func (sl *SurrealLayout) GetName() string {
	return "Surreal Layout"
}

// Step runs the base layout, then nudges velocities along the noise field so the
// drift is integrated (and clamped) by the next frame
func (sl *SurrealLayout) Step(snapshot *models.GraphSnapshot, store *PositionStore, vp models.Viewport) {
	sl.baseLayout.Step(snapshot, store, vp)
	if vp.Degenerate() || snapshot == nil || sl.intensity == 0 {
		return
	}

	for i := range snapshot.Nodes {
		k := store.entry(snapshot.Nodes[i].ID)
		if k == nil {
			continue
		}
		fx := sl.noiseGenerator.Eval3(k.X*sl.noiseScale, k.Y*sl.noiseScale, sl.timeStep)
		fy := sl.noiseGenerator.Eval3(k.X*sl.noiseScale+100, k.Y*sl.noiseScale+100, sl.timeStep)
		k.VX += fx * sl.intensity
		k.VY += fy * sl.intensity
	}

	sl.timeStep += 0.01
}

// Energy returns the total kinetic energy of the tracked nodes
func Energy(store *PositionStore) float64 {
	total := 0.0
	for _, k := range store.entries {
		total += 0.5 * (k.VX*k.VX + k.VY*k.VY)
	}
	return total
}

// GetLayoutAlgorithm returns a layout algorithm by name
func GetLayoutAlgorithm(name string, cfg Config) (Layout, error) {
	switch name {
	case "", "force":
		return NewForceDirectedLayout(cfg), nil
	case "surreal":
		return NewSurrealLayout(NewForceDirectedLayout(cfg), cfg.Noise, cfg.Seed), nil
	default:
		return nil, fmt.Errorf("unknown layout algorithm: %s", name)
	}
}
