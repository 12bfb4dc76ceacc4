package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewNode creates a new node with default appearance
func NewNode(id, label string) *Node {
	return &Node{
		ID:    id,
		Label: label,
		Size:  20.0,      // Default radius
		Color: "#06b6d4", // Default color (cyan)
	}
}

// NewEdge creates a new edge, clamping strength into [0,1]
func NewEdge(source, target string, strength float64) *Edge {
	return &Edge{
		Source:   source,
		Target:   target,
		Strength: clampUnit(strength),
	}
}

// SetAppearance sets the visual properties of a node
func (n *Node) SetAppearance(size float64, color string) {
	n.Size = size
	n.Color = color
}

// NewSnapshot creates an empty snapshot for the given time key
func NewSnapshot(key int) *GraphSnapshot {
	return &GraphSnapshot{
		ID:        uuid.New().String(),
		Key:       key,
		Nodes:     []Node{},
		Edges:     []Edge{},
		CreatedAt: time.Now(),
	}
}

// AddNode adds a node to the snapshot, rejecting duplicate IDs
func (s *GraphSnapshot) AddNode(node *Node) error {
	if node.ID == "" {
		return fmt.Errorf("node must have an ID")
	}
	if node.Size <= 0 {
		return fmt.Errorf("node %s must have a positive size", node.ID)
	}
	for _, existing := range s.Nodes {
		if existing.ID == node.ID {
			return fmt.Errorf("node with ID %s already exists in snapshot %d", node.ID, s.Key)
		}
	}
	s.Nodes = append(s.Nodes, *node)
	return nil
}

// AddEdge appends an edge to the snapshot.
// Endpoints are not validated here: the simulation and renderer skip dangling edges.
func (s *GraphSnapshot) AddEdge(edge *Edge) {
	s.Edges = append(s.Edges, *edge)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
