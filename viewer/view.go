// Package viewer ties a timeline to a live force-directed canvas: it resolves the
// requested time key, keeps node positions continuous across snapshot changes and
// draws one frame per tick.
//
// A View is not safe for concurrent use. Everything except the observables
// (CurrentKey, Hover, Frame) must run on the goroutine that owns the view, which is
// normally the scheduler loop.
package viewer

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/TFMV/echoes/interaction"
	"github.com/TFMV/echoes/models"
	"github.com/TFMV/echoes/physics"
	"github.com/TFMV/echoes/render"
)

// ErrMissingSurface is returned by Reset when there is no canvas to draw on
var ErrMissingSurface = errors.New("viewer: no drawing surface")

// ErrEmptyTimeline is returned by New for a timeline without snapshots
var ErrEmptyTimeline = models.ErrEmptyTimeline

// Options configure a View
type Options struct {
	Layout     physics.Layout    // defaults to the force-directed layout
	Placement  physics.Placement // defaults to random placement
	Style      render.Style
	Canvas     render.Canvas
	Viewport   models.Viewport
	InitialKey *int // defaults to the latest key
	OnHover    func(id string)
}

// View is a live, time-indexed graph canvas
type View struct {
	timeline *models.Timeline
	layout   physics.Layout
	store    *physics.PositionStore
	renderer *render.CanvasRenderer
	tracker  *interaction.Tracker
	canvas   render.Canvas
	viewport models.Viewport
	snapshot *models.GraphSnapshot
	ticks    uint64

	key   atomic.Int64
	frame atomic.Pointer[render.Frame]
}

// New creates a view over timeline
func New(timeline *models.Timeline, opts Options) (*View, error) {
	if timeline == nil || timeline.Len() == 0 {
		return nil, ErrEmptyTimeline
	}

	layout := opts.Layout
	if layout == nil {
		layout = physics.NewForceDirectedLayout(physics.DefaultConfig())
	}

	v := &View{
		timeline: timeline,
		layout:   layout,
		store:    physics.NewPositionStore(opts.Placement),
		renderer: render.NewCanvasRenderer(opts.Style),
		tracker:  interaction.NewTracker(opts.OnHover),
		canvas:   opts.Canvas,
		viewport: opts.Viewport,
	}

	_, latest, _ := timeline.Range()
	initial := latest
	if opts.InitialKey != nil {
		initial = *opts.InitialKey
	}
	if _, err := v.SetTimeKey(initial); err != nil {
		return nil, err
	}
	return v, nil
}

// SetTimeKey selects the snapshot nearest to requested and returns the key it
// resolved to. Positions are not touched until the next Reset.
func (v *View) SetTimeKey(requested int) (int, error) {
	key, err := v.timeline.NearestKey(requested)
	if err != nil {
		return 0, err
	}
	snapshot, err := v.timeline.Snapshot(key)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve key %d: %w", requested, err)
	}
	v.snapshot = snapshot
	v.key.Store(int64(key))
	return key, nil
}

// SetTimeline swaps the underlying timeline, keeping the nearest key to the
// current one
func (v *View) SetTimeline(timeline *models.Timeline) error {
	if timeline == nil || timeline.Len() == 0 {
		return ErrEmptyTimeline
	}
	v.timeline = timeline
	_, err := v.SetTimeKey(v.CurrentKey())
	return err
}

// Reset reconciles the position store against the current snapshot
func (v *View) Reset() error {
	if v.canvas == nil {
		return ErrMissingSurface
	}
	v.store.Reconcile(v.snapshot.Nodes, v.viewport)
	v.publish()
	return nil
}

// Tick advances the simulation one step and draws the frame. A degenerate
// viewport skips both.
func (v *View) Tick() {
	if v.viewport.Degenerate() {
		return
	}
	v.layout.Step(v.snapshot, v.store, v.viewport)
	if v.canvas != nil {
		v.renderer.Draw(v.canvas, v.snapshot, v.store, v.tracker.Hover())
	}
	v.ticks++
	v.publish()
}

// PointerMove updates the hover target for a pointer at p in canvas coordinates
func (v *View) PointerMove(p models.Point) string {
	return v.tracker.Move(p, v.viewport, v.snapshot.Nodes, v.store)
}

// PointerLeave clears the hover target
func (v *View) PointerLeave() {
	v.tracker.Clear()
}

// Resize sets the viewport. New node placement and clamping use it from the next
// Reset or Tick; callers restart the loop to re-place nodes.
func (v *View) Resize(vp models.Viewport, canvas render.Canvas) {
	if vp.Degenerate() {
		log.Printf("viewer: degenerate viewport %.0fx%.0f, frames will be skipped", vp.Width, vp.Height)
	}
	v.viewport = vp
	if canvas != nil {
		v.canvas = canvas
	}
}

// Canvas returns the drawing surface
func (v *View) Canvas() render.Canvas {
	return v.canvas
}

// Snapshot returns the current snapshot
func (v *View) Snapshot() *models.GraphSnapshot {
	return v.snapshot
}

// Layout returns the layout driving the simulation
func (v *View) Layout() physics.Layout {
	return v.layout
}

// Energy returns the kinetic energy of the simulation
func (v *View) Energy() float64 {
	return physics.Energy(v.store)
}

// Keys returns the timeline's keys in ascending order
func (v *View) Keys() []int {
	return v.timeline.Keys()
}

// CurrentKey returns the resolved time key. Safe from any goroutine.
func (v *View) CurrentKey() int {
	return int(v.key.Load())
}

// Hover returns the hovered node ID or "". Safe from any goroutine.
func (v *View) Hover() string {
	return v.tracker.Hover()
}

// Frame returns the last published frame. Its positions are a copy, so it is safe
// to read from any goroutine.
func (v *View) Frame() *render.Frame {
	return v.frame.Load()
}

func (v *View) publish() {
	v.frame.Store(&render.Frame{
		Key:       v.CurrentKey(),
		Tick:      v.ticks,
		Snapshot:  v.snapshot,
		Positions: v.store.Freeze(),
		Hover:     v.tracker.Hover(),
		Viewport:  v.viewport,
	})
}
