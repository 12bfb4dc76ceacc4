package models

import (
	"fmt"
)

// EdgeFilter is a function type used to filter edges in queries
type EdgeFilter func(edge *Edge) bool

// FindNodeByID returns a node by its ID
func (s *GraphSnapshot) FindNodeByID(id string) (*Node, error) {
	for i, node := range s.Nodes {
		if node.ID == id {
			return &s.Nodes[i], nil
		}
	}
	return nil, fmt.Errorf("node with ID %s not found", id)
}

// FindOutgoingEdges returns all edges originating from a node
func (s *GraphSnapshot) FindOutgoingEdges(nodeID string) []Edge {
	var result []Edge
	for _, edge := range s.Edges {
		if edge.Source == nodeID {
			result = append(result, edge)
		}
	}
	return result
}

// FindIncomingEdges returns all edges targeting a node
func (s *GraphSnapshot) FindIncomingEdges(nodeID string) []Edge {
	var result []Edge
	for _, edge := range s.Edges {
		if edge.Target == nodeID {
			result = append(result, edge)
		}
	}
	return result
}

// FindConnectedNodes returns all nodes directly connected to a node
func (s *GraphSnapshot) FindConnectedNodes(nodeID string) []Node {
	var result []Node
	nodeMap := make(map[string]bool)

	for _, edge := range s.Edges {
		if edge.Source == nodeID {
			nodeMap[edge.Target] = true
		}
		if edge.Target == nodeID {
			nodeMap[edge.Source] = true
		}
	}

	for _, node := range s.Nodes {
		if nodeMap[node.ID] {
			result = append(result, node)
		}
	}

	return result
}

// Degree returns the number of edges touching a node
func (s *GraphSnapshot) Degree(nodeID string) int {
	return len(s.FindOutgoingEdges(nodeID)) + len(s.FindIncomingEdges(nodeID))
}

// DanglingEdges returns the edges whose endpoints are not both in the snapshot
func (s *GraphSnapshot) DanglingEdges() []Edge {
	ids := make(map[string]bool, len(s.Nodes))
	for _, node := range s.Nodes {
		ids[node.ID] = true
	}
	return s.FilterEdges(func(e *Edge) bool {
		return !ids[e.Source] || !ids[e.Target]
	})
}

// FilterEdges returns edges that match the provided filter function
func (s *GraphSnapshot) FilterEdges(filter EdgeFilter) []Edge {
	var result []Edge
	for i, edge := range s.Edges {
		if filter(&s.Edges[i]) {
			result = append(result, edge)
		}
	}
	return result
}
