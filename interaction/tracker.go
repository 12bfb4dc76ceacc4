// Package interaction maps pointer coordinates onto graph nodes.
package interaction

import (
	"math"
	"sync/atomic"

	"github.com/TFMV/echoes/models"
)

// Locate returns the ID of the first node, in snapshot order, whose center lies
// strictly closer to pointer than its radius. It is a first match, not the nearest
// node: overlapping glyphs resolve to the one listed earlier.
func Locate(pointer models.Point, nodes []models.Node, positions models.Positions) (string, bool) {
	for _, node := range nodes {
		p, ok := positions.Lookup(node.ID)
		if !ok {
			continue
		}
		if math.Hypot(pointer.X-p.X, pointer.Y-p.Y) < node.Size {
			return node.ID, true
		}
	}
	return "", false
}

// Tracker holds the current hover target. Move is called from the goroutine that
// owns the positions; Hover may be read from anywhere.
type Tracker struct {
	hover   atomic.Value // string
	onHover func(id string)
}

// NewTracker creates a tracker with no hover target. onHover, if set, is called
// whenever the target changes (with "" when it is cleared).
func NewTracker(onHover func(id string)) *Tracker {
	t := &Tracker{onHover: onHover}
	t.hover.Store("")
	return t
}

// Move recomputes the hover target for a pointer at p inside bounds
func (t *Tracker) Move(p models.Point, bounds models.Viewport, nodes []models.Node, positions models.Positions) string {
	id := ""
	if !bounds.Degenerate() && bounds.Contains(p) {
		id, _ = Locate(p, nodes, positions)
	}
	t.set(id)
	return id
}

// Clear drops the hover target, e.g. when the pointer leaves the surface
func (t *Tracker) Clear() {
	t.set("")
}

// Hover returns the current target, or "" when nothing is hovered
func (t *Tracker) Hover() string {
	return t.hover.Load().(string)
}

func (t *Tracker) set(id string) {
	prev := t.hover.Swap(id).(string)
	if prev != id && t.onHover != nil {
		t.onHover(id)
	}
}
