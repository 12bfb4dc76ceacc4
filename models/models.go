// Package models provides data structures and interfaces for the echoes application.
// It defines the time-indexed graph snapshots and the geometry shared by the
// simulation, rendering and interaction layers.
package models

import (
	"time"
)

// Node represents a concept node within one snapshot
type Node struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Size  float64 `json:"size"` // Visual radius in logical pixels
	Color string  `json:"color"`
}

// Edge represents a link between two nodes of the same snapshot
type Edge struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Strength float64 `json:"strength"` // 0..1, drives both line weight and spring force
}

// GraphSnapshot is the node/edge data for one discrete time key.
// Snapshots are produced by the data layer and never mutated by the core.
type GraphSnapshot struct {
	ID        string    `json:"id"`
	Key       int       `json:"key"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"links"`
	CreatedAt time.Time `json:"created_at"`
}

// Narrative is the textual summary shown next to the graph
type Narrative struct {
	Summary            string      `json:"summary"`
	SemanticShift      float64     `json:"semanticShift"`
	PrimaryAssociation Association `json:"primaryAssociation"`
}

// Association describes how the dominant meaning moved between two eras
type Association struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Artifact is one side of a pattern comparison
type Artifact struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Era         string `json:"era"`
	ImagePath   string `json:"imagePath,omitempty"`
}

// PatternPair pairs a historical artifact with its modern counterpart
type PatternPair struct {
	Ancient Artifact `json:"ancient"`
	Modern  Artifact `json:"modern"`
}

// Concept is everything known about one searched concept
type Concept struct {
	Name      string              `json:"concept"`
	TimeRange string              `json:"timeRange"`
	Narrative Narrative           `json:"narrative"`
	Timeline  *Timeline           `json:"-"`
	Patterns  map[int]PatternPair `json:"patterns,omitempty"`
	Source    string              `json:"source"` // "backend", "offline" or "file"
}

// Point is a position in logical pixel space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the rectangular pixel space the layout lives in
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the middle of the viewport
func (v Viewport) Center() Point {
	return Point{X: v.Width / 2, Y: v.Height / 2}
}

// Degenerate reports whether the viewport has no drawable area
func (v Viewport) Degenerate() bool {
	return v.Width <= 0 || v.Height <= 0
}

// Contains reports whether p lies inside the viewport bounds
func (v Viewport) Contains(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= v.Width && p.Y <= v.Height
}

// Positions is a read-only view of node positions keyed by node ID
type Positions interface {
	Lookup(id string) (Point, bool)
}

// PointMap is a frozen set of positions
type PointMap map[string]Point

// Lookup returns the position stored for id
func (m PointMap) Lookup(id string) (Point, bool) {
	p, ok := m[id]
	return p, ok
}
