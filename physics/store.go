package physics

import (
	"math/rand"
	"sort"
	"time"

	"github.com/TFMV/echoes/models"
)

// Kinematics is a node's simulated position and velocity
type Kinematics struct {
	X, Y   float64
	VX, VY float64
}

// Placement chooses the initial position of a node entering the layout
type Placement interface {
	Place(node models.Node, vp models.Viewport) models.Point
}

// PlacementFunc adapts a function to the Placement interface
type PlacementFunc func(node models.Node, vp models.Viewport) models.Point

// Place calls f
func (f PlacementFunc) Place(node models.Node, vp models.Viewport) models.Point {
	return f(node, vp)
}

// RandomPlacement samples positions uniformly inside the viewport.
// A zero seed uses the current time.
func RandomPlacement(seed int64) Placement {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	return PlacementFunc(func(_ models.Node, vp models.Viewport) models.Point {
		return models.Point{X: rng.Float64() * vp.Width, Y: rng.Float64() * vp.Height}
	})
}

// FixedPlacement places known IDs at the given points and everything else at the center
func FixedPlacement(points map[string]models.Point) Placement {
	return PlacementFunc(func(node models.Node, vp models.Viewport) models.Point {
		if p, ok := points[node.ID]; ok {
			return p
		}
		return vp.Center()
	})
}

// PositionStore holds per-node kinematic state across snapshot changes.
// It is owned by a single goroutine and is not safe for concurrent use.
type PositionStore struct {
	entries   map[string]*Kinematics
	placement Placement
}

// NewPositionStore creates an empty store. A nil placement samples randomly.
func NewPositionStore(placement Placement) *PositionStore {
	if placement == nil {
		placement = RandomPlacement(0)
	}
	return &PositionStore{
		entries:   make(map[string]*Kinematics),
		placement: placement,
	}
}

// Reconcile makes the tracked set equal to the IDs in nodes. New IDs are placed
// with zero velocity, IDs absent from nodes are dropped and surviving entries keep
// their state untouched. New entries land on the origin when vp has no area.
func (s *PositionStore) Reconcile(nodes []models.Node, vp models.Viewport) {
	current := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		current[node.ID] = true
		if _, ok := s.entries[node.ID]; ok {
			continue
		}
		var p models.Point
		if !vp.Degenerate() {
			p = s.placement.Place(node, vp)
		}
		s.entries[node.ID] = &Kinematics{X: p.X, Y: p.Y}
	}

	for id := range s.entries {
		if !current[id] {
			delete(s.entries, id)
		}
	}
}

// Get returns a copy of the state tracked for id
func (s *PositionStore) Get(id string) (Kinematics, bool) {
	k, ok := s.entries[id]
	if !ok {
		return Kinematics{}, false
	}
	return *k, true
}

// Set overwrites the state for id, creating the entry if needed
func (s *PositionStore) Set(id string, k Kinematics) {
	s.entries[id] = &k
}

// Lookup implements models.Positions
func (s *PositionStore) Lookup(id string) (models.Point, bool) {
	k, ok := s.entries[id]
	if !ok {
		return models.Point{}, false
	}
	return models.Point{X: k.X, Y: k.Y}, true
}

// Len returns the number of tracked nodes
func (s *PositionStore) Len() int {
	return len(s.entries)
}

// IDs returns the tracked node IDs in sorted order
func (s *PositionStore) IDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Freeze copies the current positions into an immutable map
func (s *PositionStore) Freeze() models.PointMap {
	m := make(models.PointMap, len(s.entries))
	for id, k := range s.entries {
		m[id] = models.Point{X: k.X, Y: k.Y}
	}
	return m
}

func (s *PositionStore) entry(id string) *Kinematics {
	return s.entries[id]
}
